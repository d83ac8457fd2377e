package cache

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/forattini-dev/raffel/logging"
)

// MemoryOptions configures the in-process Store. Grounded on the
// teacher's orchestration.LRUCache (doubly-linked eviction list) and
// orchestration.SimpleCache (periodic expired-entry sweep), generalized
// to the dual-map/ordinal-counter design and multi-tier eviction this
// module's domain spec calls for.
type MemoryOptions struct {
	// MaxEntries caps the number of entries; 0 means unbounded by count.
	MaxEntries int
	// MaxBytes caps estimated total payload size; 0 means unbounded.
	MaxBytes int64
	// SweepInterval runs a periodic pass evicting expired entries. 0
	// disables the background sweeper; expired entries are then evicted
	// only when Get reads them.
	SweepInterval time.Duration
	// HeapGuardFraction, if non-zero, triggers an emergency halving of
	// the cache when process heap usage exceeds this fraction of the
	// detected memory limit (cgroup v2, then v1, else the Go runtime's
	// MemStats.Sys).
	HeapGuardFraction float64
	Logger            logging.Logger
}

type memoryRecord struct {
	entry     Entry
	sizeBytes int64
}

type meta struct {
	lastAccess  int64
	insertOrder int64
	sizeBytes   int64
	expiresAt   time.Time
}

// Memory is the dual-map in-process Store: entries holds the cached
// value, meta holds the bookkeeping eviction needs, so choosing a victim
// scans only the metadata map; the victim is then removed from both.
type Memory struct {
	opts MemoryOptions

	mu       sync.Mutex
	entries  map[string]memoryRecord
	metadata map[string]*meta
	ordinal  int64 // monotonic counter driving LRU/FIFO ordering
	sizeSum  int64

	stopSweep chan struct{}

	compressHits   int64
	compressMisses int64
}

// NewMemory builds an in-process cache store and starts its background
// sweeper if SweepInterval > 0.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.Logger == nil {
		opts.Logger = logging.NoOp{}
	}
	m := &Memory{
		opts:      opts,
		entries:   make(map[string]memoryRecord),
		metadata:  make(map[string]*meta),
		stopSweep: make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go m.sweepLoop()
	}
	return m
}

// Close stops the background sweeper. Safe to call once.
func (m *Memory) Close() {
	if m.opts.SweepInterval > 0 {
		close(m.stopSweep)
	}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	md := m.metadata[key]
	now := time.Now()
	if !rec.entry.ExpiresAt.IsZero() && !rec.entry.Fresh(now) && !rec.entry.Stale(now) {
		m.evictLocked(key)
		return Entry{}, false, nil
	}

	m.ordinal++
	md.lastAccess = m.ordinal
	e := rec.entry
	if cloned, err := deepClone(e.Value); err == nil {
		e.Value = cloned
	}
	return e, true, nil
}

func (m *Memory) Set(_ context.Context, key string, entry Entry) error {
	size := estimateSize(entry.Value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.entries[key]; exists {
		m.sizeSum -= old.sizeBytes
	}

	m.ordinal++
	m.entries[key] = memoryRecord{entry: entry, sizeBytes: size}
	m.metadata[key] = &meta{
		lastAccess:  m.ordinal,
		insertOrder: m.ordinal,
		sizeBytes:   size,
		expiresAt:   entry.ExpiresAt,
	}
	m.sizeSum += size

	m.enforceLimitsLocked()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(key)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryRecord)
	m.metadata = make(map[string]*meta)
	m.sizeSum = 0
	return nil
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out, nil
}

func (m *Memory) evictLocked(key string) {
	if rec, ok := m.entries[key]; ok {
		m.sizeSum -= rec.sizeBytes
		delete(m.entries, key)
		delete(m.metadata, key)
	}
}

// enforceLimitsLocked runs every eviction trigger in order: count cap,
// then memory-bytes cap, then the heap-usage health check. Caller holds m.mu.
func (m *Memory) enforceLimitsLocked() {
	if m.opts.MaxEntries > 0 {
		for len(m.entries) > m.opts.MaxEntries {
			m.evictOneLocked()
		}
	}
	if m.opts.MaxBytes > 0 {
		for m.sizeSum > m.opts.MaxBytes && len(m.entries) > 0 {
			m.evictOneLocked()
		}
	}
	if m.opts.HeapGuardFraction > 0 && m.heapOverLimitLocked() {
		m.opts.Logger.Warn("cache: heap usage over limit, halving cache", map[string]interface{}{
			"entries": len(m.entries),
		})
		target := len(m.entries) / 2
		for len(m.entries) > target {
			m.evictOneLocked()
		}
	}
}

// evictOneLocked removes the entry with the smallest lastAccess ordinal
// (least recently used); ties broken by insertOrder (oldest first, i.e.
// FIFO among equally-stale entries).
func (m *Memory) evictOneLocked() {
	var victim string
	var victimMeta *meta
	for k, md := range m.metadata {
		if victimMeta == nil || md.lastAccess < victimMeta.lastAccess ||
			(md.lastAccess == victimMeta.lastAccess && md.insertOrder < victimMeta.insertOrder) {
			victim = k
			victimMeta = md
		}
	}
	if victim != "" {
		m.evictLocked(victim)
	}
}

func (m *Memory) heapOverLimitLocked() bool {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	limit := detectMemoryLimit()
	if limit <= 0 {
		return false
	}
	return float64(stats.HeapAlloc) > float64(limit)*m.opts.HeapGuardFraction
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepExpired()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *Memory) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.entries {
		if !rec.entry.ExpiresAt.IsZero() && now.After(rec.entry.ExpiresAt) && !rec.entry.Stale(now) {
			m.evictLocked(key)
		}
	}
}

// estimateSize is a rough byte-size estimate used only for MaxBytes
// accounting; it does not need to be exact.
func estimateSize(v interface{}) int64 {
	cloned, err := canonicalize(v)
	if err != nil {
		return 0
	}
	return int64(len(cloned))
}

// detectMemoryLimit tries cgroup v2, then cgroup v1, then falls back to
// the process's own reported system memory via runtime.MemStats' Sys,
// which is the best stdlib-only approximation of "total available"
// without shelling out or adding a dependency for a single syscall read.
func detectMemoryLimit() int64 {
	if limit, ok := readCgroupV2Limit(); ok {
		return limit
	}
	if limit, ok := readCgroupV1Limit(); ok {
		return limit
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(stats.Sys)
}

func readCgroupV2Limit() (int64, bool) {
	return readLimitFile("/sys/fs/cgroup/memory.max")
}

func readCgroupV1Limit() (int64, bool) {
	return readLimitFile("/sys/fs/cgroup/memory/memory.limit_in_bytes")
}

func readLimitFile(path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, false
	}
	text := strings.TrimSpace(scanner.Text())
	if text == "max" {
		return 0, false
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
