// Package integrity implements a background, read-only drift monitor
// for the free-relation index: it periodically walks every registered
// store's entities and reports (never repairs) edges whose target no
// longer exists.
//
// The deletion engine (package deletion) never leaves a dangling edge
// under its own operations, but spec.md §5 documents that concurrent
// allocators and the backing engine's own crash-recovery story can
// still produce drift the core has no way to prevent. This monitor is
// the supplemented diagnostic for that gap — adapted from the
// teacher's services.DeletionCollector (same Start/Stop/ticker/stats
// shape), re-targeted at edge auditing instead of lifecycle
// transitions.
package integrity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"entitydb/kvengine"
	"entitydb/logger"
	"entitydb/registry"
	"entitydb/relation"
	"entitydb/serialize"
)

// Config configures the monitor's schedule.
type Config struct {
	// Enabled controls whether Start actually launches the
	// background loop; Monitor.RunOnce always works regardless.
	Enabled bool
	// Interval is how often the background loop scans.
	Interval time.Duration
}

// Finding is one dangling edge: a directed edge whose target endpoint
// no longer has a record.
type Finding struct {
	SourceStore string
	SourceKey   []byte
	TargetStore string
	TargetKey   []byte
	Name        string
}

// Stats summarizes the monitor's run history.
type Stats struct {
	TotalRuns       int64
	LastRunTime     time.Time
	LastRunDuration string
	DanglingEdges   int64
	LastError       string
	LastErrorTime   time.Time
}

// Monitor periodically scans a Database's free-relation index for
// dangling edges.
type Monitor struct {
	kv     kvengine.Database
	reg    *registry.Registry
	codec  serialize.Codec
	config Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	running int32

	mu           sync.RWMutex
	stats        Stats
	lastFindings []Finding
}

// New returns a Monitor over kv's free-relation index, resolving store
// descriptors through reg.
func New(kv kvengine.Database, reg *registry.Registry, codec serialize.Codec, config Config) *Monitor {
	return &Monitor{kv: kv, reg: reg, codec: codec, config: config}
}

// Start launches the background scan loop if config.Enabled, or is a
// no-op otherwise. Safe to call more than once; only the first call
// after a Stop takes effect.
func (m *Monitor) Start() {
	if !m.config.Enabled {
		return
	}
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.loop()
}

// Stop ends the background loop and waits for it to exit.
func (m *Monitor) Stop() {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return
	}
	m.cancel()
	m.wg.Wait()
}

// IsRunning reports whether the background loop is active.
func (m *Monitor) IsRunning() bool { return atomic.LoadInt32(&m.running) == 1 }

func (m *Monitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce()
		}
	}
}

// RunOnce scans immediately, updates Stats, and returns what it found.
func (m *Monitor) RunOnce() []Finding {
	start := time.Now()
	findings, err := m.scan()

	m.mu.Lock()
	m.stats.TotalRuns++
	m.stats.LastRunTime = start
	m.stats.LastRunDuration = time.Since(start).String()
	m.stats.DanglingEdges = int64(len(findings))
	if err != nil {
		m.stats.LastError = err.Error()
		m.stats.LastErrorTime = time.Now()
	}
	m.lastFindings = findings
	m.mu.Unlock()

	if err != nil {
		logger.Error("integrity: scan failed: %v", err)
	} else if len(findings) > 0 {
		logger.Warn("integrity: found %d dangling free-relation edge(s)", len(findings))
	}
	return findings
}

// GetStats returns a snapshot of the monitor's run history.
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// LastFindings returns the findings from the most recent scan.
func (m *Monitor) LastFindings() []Finding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Finding, len(m.lastFindings))
	copy(out, m.lastFindings)
	return out
}

// scan enumerates every registered store's keys and, for each, every
// outgoing free-relation edge, reporting edges whose target record no
// longer exists. It never mutates the index — repair is an operator
// decision (replay RemoveEdgePair, or recreate the missing endpoint),
// not something this monitor does on its own.
func (m *Monitor) scan() ([]Finding, error) {
	tx, err := m.kv.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	freeBucket := tx.Bucket(relation.BucketName)
	if freeBucket == nil {
		return nil, nil
	}

	var findings []Finding
	for _, storeName := range m.reg.StoreNames() {
		bucket := tx.Bucket(storeName)
		if bucket == nil {
			continue
		}
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			source := relation.Endpoint{Store: storeName, Key: append([]byte(nil), k...)}
			edges, err := relation.Outgoing(freeBucket, m.codec, source)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				targetBucket := tx.Bucket(edge.Target.Store)
				if targetBucket != nil && targetBucket.Get(edge.Target.Key) != nil {
					continue
				}
				findings = append(findings, Finding{
					SourceStore: storeName,
					SourceKey:   source.Key,
					TargetStore: edge.Target.Store,
					TargetKey:   edge.Target.Key,
					Name:        edge.Name,
				})
			}
		}
	}
	return findings, nil
}
