package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Format selects the wire shape of a log line.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures a ProductionLogger.
type Options struct {
	Level       string // debug|info|warn|error
	Format      Format
	Output      io.Writer
	ServiceName string
	Component   string
}

// ProductionLogger is the default Logger implementation: JSON in
// production-like environments, human-readable text for local development.
// Detection mirrors the teacher's Kubernetes auto-detection, generalized to
// an explicit RAFFEL_ENV check so the library doesn't assume a deploy target.
type ProductionLogger struct {
	level     string
	debug     bool
	service   string
	component string
	format    Format
	output    io.Writer
}

// New creates a ProductionLogger. If opts.Format is empty it is inferred
// from RAFFEL_ENV (anything but "development" gets JSON).
func New(opts Options) *ProductionLogger {
	format := opts.Format
	if format == "" {
		format = FormatJSON
		if os.Getenv("RAFFEL_ENV") == "development" {
			format = FormatText
		}
	}
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	level := strings.ToLower(opts.Level)
	if level == "" {
		level = "info"
	}
	return &ProductionLogger{
		level:     level,
		debug:     level == "debug",
		service:   opts.ServiceName,
		component: opts.Component,
		format:    format,
		output:    output,
	}
}

// WithComponent returns a logger that tags every line with component.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{})  { p.log("INFO", msg, fields, nil) }
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{})  { p.log("WARN", msg, fields, nil) }
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) { p.log("ERROR", msg, fields, nil) }
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.log("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("INFO", msg, fields, ctx)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("WARN", msg, fields, ctx)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("ERROR", msg, fields, ctx)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.log("DEBUG", msg, fields, ctx)
	}
}

// levelRank orders the levels Options.Level accepts; log drops any line
// ranked below the logger's configured level.
var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

func (p *ProductionLogger) log(level, msg string, fields map[string]interface{}, ctx context.Context) {
	if levelRank[strings.ToLower(level)] < levelRank[p.level] {
		return
	}
	ts := time.Now().Format(time.RFC3339)

	if p.format == FormatJSON {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"service":   p.service,
			"component": p.component,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s\n", ts, level, p.service, p.component, msg, b.String())
}
