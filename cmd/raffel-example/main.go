// Command raffel-example wires an Engine to the HTTP transport adapter
// and registers a handful of procedure/event/stream handlers, the way
// the teacher's cmd/example wires a BaseAgent to a port.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forattini-dev/raffel/config"
	"github.com/forattini-dev/raffel/engine"
	"github.com/forattini-dev/raffel/envelope"
	"github.com/forattini-dev/raffel/registry"
	httptransport "github.com/forattini-dev/raffel/transport/http"
)

func main() {
	cfg, err := config.New(
		config.WithServiceName("raffel-example"),
		config.WithPort(8080),
		config.WithCORS([]string{"*"}, false),
	)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	e, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	if err := registerHandlers(e.Registry()); err != nil {
		log.Fatalf("registering handlers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.Start(ctx); err != nil {
		log.Fatalf("engine start: %v", err)
	}

	srv := httptransport.New(cfg.HTTP, e.Registry(), e.Router(),
		httptransport.WithLogger(e.Logger()),
		httptransport.WithServiceName(cfg.ServiceName),
		httptransport.WithTracker(e.Tracker()),
	)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("engine shutdown: %v", err)
		}
	}()

	log.Printf("raffel-example listening on %s:%d", cfg.HTTP.Address, cfg.HTTP.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("http server: %v", err)
	}
}

// registerHandlers registers one handler of each kind, demonstrating
// the three shapes spec §6 maps onto HTTP.
func registerHandlers(reg *registry.Registry) error {
	if err := reg.Register("echo.say", &registry.HandlerDescriptor{
		Kind: registry.KindProcedure,
		Handler: registry.Handler{
			Procedure: func(ctx *envelope.Context, payload interface{}) (interface{}, error) {
				return map[string]interface{}{"echoed": payload}, nil
			},
		},
	}); err != nil {
		return err
	}

	if err := reg.Register("orders.placed", &registry.HandlerDescriptor{
		Kind:              registry.KindEvent,
		DeliverySemantics: registry.AtLeastOnce,
		Handler: registry.Handler{
			Event: func(ctx *envelope.Context, payload interface{}) error {
				log.Printf("order placed: %+v", payload)
				return nil
			},
		},
	}); err != nil {
		return err
	}

	return reg.Register("counter.tick", &registry.HandlerDescriptor{
		Kind: registry.KindStream,
		Handler: registry.Handler{
			Stream: func(ctx *envelope.Context, payload interface{}, emit func(interface{}) error) error {
				for i := 0; ; i++ {
					select {
					case <-ctx.GoContext().Done():
						return nil
					case <-time.After(time.Second):
						if err := emit(map[string]int{"tick": i}); err != nil {
							return err
						}
					}
				}
			},
		},
	})
}
