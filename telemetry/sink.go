package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/logging"
)

const (
	// DefaultLimit is applied to log reads when the caller passes a
	// non-positive limit.
	DefaultLimit = 100
	// MaxLimit caps log reads regardless of the caller's request.
	MaxLimit = 1000

	// DefaultRetentionDays is the purge cutoff when none is given.
	DefaultRetentionDays = 7
	// MaxRetentionDays caps the purge cutoff.
	MaxRetentionDays = 30

	// deletionRetention keeps basket deletion events for 30 days.
	deletionRetention = 30 * 24 * time.Hour
)

// Options configures a Sink.
type Options struct {
	// QueueSize bounds the deferred durable-write queue. When full, writes
	// are dropped with a warning instead of blocking the execution path.
	QueueSize int

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Sink is the dual-write telemetry logger. Either store may be nil or
// unreachable; the sink degrades to whatever remains and only ever reports
// ErrTelemetryUnavailable when both sides are gone.
type Sink struct {
	kv     KV
	audit  AuditStore
	logger logging.Logger

	queue     chan Record
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewSink creates a sink over the given stores and starts the durable-write
// drain goroutine when an audit store is present.
func NewSink(kv KV, audit AuditStore, optFns ...func(o *Options)) *Sink {
	opts := Options{
		QueueSize: 256,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Sink{
		kv:     kv,
		audit:  audit,
		logger: opts.Logger,
		queue:  make(chan Record, opts.QueueSize),
	}
	if audit != nil {
		s.wg.Add(1)
		go s.drain()
	}
	return s
}

// drain moves queued records into the durable store until Close.
func (s *Sink) drain() {
	defer s.wg.Done()
	for rec := range s.queue {
		if err := s.audit.AppendLog(context.Background(), rec); err != nil {
			s.logger.Warn("durable telemetry write failed", "execution_id", rec.ExecutionID, "error", err.Error())
		}
	}
}

// kvAvailable reports whether the ephemeral store can be used.
func (s *Sink) kvAvailable(ctx context.Context) bool {
	return s.kv != nil && s.kv.Ping(ctx) == nil
}

// Append writes a step log to the ephemeral store synchronously and queues a
// durable write. It never fails the caller: unavailable stores degrade to a
// logged warning.
func (s *Sink) Append(ctx context.Context, executionID, agent string, step int, level string, payload core.Payload) {
	rec := Record{
		ExecutionID: executionID,
		Agent:       agent,
		Step:        step,
		Level:       level,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}

	if s.kvAvailable(ctx) {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.kv.LPush(ctx, ExecutionLogsKey(executionID), string(data)); err != nil {
				s.logger.Warn("ephemeral telemetry write failed", "key", ExecutionLogsKey(executionID), "error", err.Error())
			}
			if err := s.kv.LPush(ctx, AgentLogsKey(agent), string(data)); err != nil {
				s.logger.Warn("ephemeral telemetry write failed", "key", AgentLogsKey(agent), "error", err.Error())
			}
		}
	} else {
		s.logger.Warn("ephemeral store unavailable, skipping fast-path telemetry", "execution_id", executionID)
	}

	if s.audit == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("telemetry sink closed, dropping durable record", "execution_id", executionID, "agent", agent)
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.logger.Warn("durable telemetry queue full, dropping record", "execution_id", executionID, "agent", agent)
	}
}

// StoreOutput records an agent's output under the execution's output
// namespace. Best effort.
func (s *Sink) StoreOutput(ctx context.Context, executionID, agent string, output core.Payload) {
	if !s.kvAvailable(ctx) {
		return
	}
	data, err := json.Marshal(output)
	if err != nil {
		return
	}
	if err := s.kv.LPush(ctx, OutputKey(executionID, agent), string(data)); err != nil {
		s.logger.Warn("failed to store agent output", "execution_id", executionID, "agent", agent, "error", err.Error())
	}
}

// RecordExecution associates an execution id with its basket in both stores
// so cleanup can later enumerate the basket's footprint.
func (s *Sink) RecordExecution(ctx context.Context, basket, executionID string) {
	if s.kvAvailable(ctx) {
		if err := s.kv.LPush(ctx, BasketExecutionsKey(basket), executionID); err != nil {
			s.logger.Warn("failed to record execution in ephemeral store", "basket", basket, "error", err.Error())
		}
	}
	if s.audit != nil {
		if err := s.audit.RecordExecution(ctx, basket, executionID); err != nil {
			s.logger.Warn("failed to record execution in durable store", "basket", basket, "error", err.Error())
		}
	}
}

// clampLimit applies the default and maximum read bounds.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ExecutionLogs returns up to limit records for one execution, most recent
// first. It prefers the ephemeral store and falls back to the durable store;
// ErrTelemetryUnavailable is returned only when neither can serve the read.
func (s *Sink) ExecutionLogs(ctx context.Context, executionID string, limit int) ([]Record, error) {
	return s.readLogs(ctx, ExecutionLogsKey(executionID), limit, func(n int) ([]Record, error) {
		return s.audit.ExecutionLogs(ctx, executionID, n)
	})
}

// AgentLogs returns up to limit records for one agent, most recent first.
func (s *Sink) AgentLogs(ctx context.Context, agent string, limit int) ([]Record, error) {
	return s.readLogs(ctx, AgentLogsKey(agent), limit, func(n int) ([]Record, error) {
		return s.audit.AgentLogs(ctx, agent, n)
	})
}

func (s *Sink) readLogs(ctx context.Context, key string, limit int, durable func(int) ([]Record, error)) ([]Record, error) {
	limit = clampLimit(limit)

	if s.kvAvailable(ctx) {
		raw, err := s.kv.LRange(ctx, key, limit)
		if err == nil {
			recs := make([]Record, 0, len(raw))
			for _, item := range raw {
				var rec Record
				if err := json.Unmarshal([]byte(item), &rec); err != nil {
					s.logger.Warn("skipping malformed telemetry record", "key", key)
					continue
				}
				recs = append(recs, rec)
			}
			return recs, nil
		}
		s.logger.Warn("ephemeral telemetry read failed, falling back to durable store", "key", key, "error", err.Error())
	}

	if s.audit != nil {
		recs, err := durable(limit)
		if err == nil {
			return recs, nil
		}
		s.logger.Warn("durable telemetry read failed", "key", key, "error", err.Error())
	}
	return nil, core.ErrTelemetryUnavailable
}

// ExecutionsForBasket unions the execution identifiers known to either store
// for the basket name.
func (s *Sink) ExecutionsForBasket(ctx context.Context, basket string) []string {
	seen := map[string]bool{}
	var ids []string

	if s.kvAvailable(ctx) {
		if raw, err := s.kv.LRange(ctx, BasketExecutionsKey(basket), 0); err == nil {
			for _, id := range raw {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	if s.audit != nil {
		if durable, err := s.audit.ExecutionsForBasket(ctx, basket); err == nil {
			for _, id := range durable {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}

// RecordDeletion appends a structured basket deletion event, retained for 30
// days on the ephemeral store.
func (s *Sink) RecordDeletion(ctx context.Context, event core.Payload) {
	if !s.kvAvailable(ctx) {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.kv.LPush(ctx, DeletionsKey, string(data)); err != nil {
		s.logger.Warn("failed to record deletion event", "error", err.Error())
		return
	}
	if err := s.kv.Expire(ctx, DeletionsKey, deletionRetention); err != nil {
		s.logger.Warn("failed to set deletion event retention", "error", err.Error())
	}
}

// PurgeOlderThan deletes ephemeral records past the retention window. Days
// are clamped to 1..MaxRetentionDays with DefaultRetentionDays as fallback.
// Durable records are retained independently.
func (s *Sink) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	if days > MaxRetentionDays {
		days = MaxRetentionDays
	}
	if !s.kvAvailable(ctx) {
		return 0, core.ErrTelemetryUnavailable
	}
	return s.kv.PurgeOlderThan(ctx, time.Duration(days)*24*time.Hour)
}

// KV exposes the ephemeral store for the cleanup coordinator's key-level
// cascade. May return nil.
func (s *Sink) KV() KV { return s.kv }

// Audit exposes the durable store. May return nil.
func (s *Sink) Audit() AuditStore { return s.audit }

// Healthy reports per-store reachability.
func (s *Sink) Healthy(ctx context.Context) (ephemeral, durable bool) {
	ephemeral = s.kvAvailable(ctx)
	durable = s.audit != nil && s.audit.Ping(ctx) == nil
	return ephemeral, durable
}

// Close stops the durable drain goroutine after flushing queued records.
// Appends arriving after Close degrade to a logged warning like any other
// telemetry failure.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		s.wg.Wait()
	})
}
