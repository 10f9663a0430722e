package game

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"egg-arena/internal/config"
	"egg-arena/internal/metrics"
)

const (
	EventBufferSize      = 1024
	MaxEventsPerSec      = 10000 // Global rate limit
	MaxEventsPerPlayer   = 100   // Per-player rate limit per second
	BatchFlushSize       = 64
	BatchFlushInterval   = 100 * time.Millisecond
	PlayerLimiterCleanup = 5 * time.Minute
)

// EventLog is a bounded, rate-limited audit trail written as JSON lines.
// Emit never blocks: events beyond the rate limits or buffer are dropped
// and counted. A nil *EventLog discards everything.
type EventLog struct {
	events chan Event
	out    io.WriteCloser
	log    *zap.Logger

	globalLimiter  *rate.Limiter
	playerLimiters sync.Map // map[string]*playerLimiterEntry

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	sequence     atomic.Uint64
	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

type playerLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // Unix nano
}

// NewEventLog creates an event log writing to out. Call Start to begin writing.
func NewEventLog(out io.WriteCloser, log *zap.Logger) *EventLog {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLog{
		events:        make(chan Event, EventBufferSize),
		out:           out,
		log:           log,
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// OpenEventLog builds and starts an event log from cfg, rotating the file
// with lumberjack. It returns nil when the log is disabled.
func OpenEventLog(cfg config.EventLogConfig, log *zap.Logger) *EventLog {
	if !cfg.Enabled || cfg.Path == "" {
		return nil
	}
	el := NewEventLog(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    50,
		MaxBackups: 5,
	}, log)
	el.Start()
	return el
}

// Start launches the writer and limiter cleanup goroutines.
func (el *EventLog) Start() {
	if el == nil || !el.running.CompareAndSwap(false, true) {
		return
	}
	el.wg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
}

// Stop flushes pending events and closes the output.
func (el *EventLog) Stop() {
	if el == nil {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.wg.Wait()
		if el.out != nil {
			if err := el.out.Close(); err != nil {
				el.log.Warn("event log close failed", zap.Error(err))
			}
		}
	})
}

// Emit queues an event. It returns false when the event was dropped.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.drop()
		return false
	}
	if event.PlayerID != "" && !el.getPlayerLimiter(event.PlayerID).Allow() {
		el.drop()
		return false
	}

	event.Sequence = el.sequence.Add(1)
	select {
	case el.events <- event:
		el.totalCount.Add(1)
		return true
	default:
		el.drop()
		return false
	}
}

// EmitSimple builds and emits an event in one call.
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, playerID string, payload any) bool {
	if el == nil {
		return false
	}
	return el.Emit(NewEvent(eventType, tickNum, playerID, payload))
}

func (el *EventLog) drop() {
	el.droppedCount.Add(1)
	metrics.IncEventLogDropped()
}

func (el *EventLog) getPlayerLimiter(playerID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.playerLimiters.Load(playerID); ok {
		e := v.(*playerLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &playerLimiterEntry{
		limiter: rate.NewLimiter(MaxEventsPerPlayer, MaxEventsPerPlayer/10),
	}
	entry.lastUsed.Store(now)
	actual, _ := el.playerLimiters.LoadOrStore(playerID, entry)
	return actual.(*playerLimiterEntry).limiter
}

// writerLoop batches events and writes them as newline-delimited JSON.
func (el *EventLog) writerLoop() {
	defer el.wg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	w := bufio.NewWriter(el.out)
	enc := json.NewEncoder(w)
	pending := 0

	flush := func() {
		if pending == 0 {
			return
		}
		if err := w.Flush(); err != nil {
			el.log.Warn("event log flush failed", zap.Error(err))
		}
		pending = 0
	}

	for {
		select {
		case ev := <-el.events:
			if err := enc.Encode(ev); err != nil {
				el.log.Warn("event log encode failed", zap.Error(err))
				continue
			}
			pending++
			if pending >= BatchFlushSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-el.stopChan:
			for {
				select {
				case ev := <-el.events:
					if err := enc.Encode(ev); err == nil {
						pending++
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// cleanupLoop removes stale per-player limiters.
func (el *EventLog) cleanupLoop() {
	defer el.wg.Done()

	ticker := time.NewTicker(PlayerLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupPlayerLimiters(time.Now().Add(-PlayerLimiterCleanup))
		}
	}
}

func (el *EventLog) cleanupPlayerLimiters(cutoff time.Time) {
	el.playerLimiters.Range(func(key, value any) bool {
		if value.(*playerLimiterEntry).lastUsed.Load() < cutoff.UnixNano() {
			el.playerLimiters.Delete(key)
		}
		return true
	})
}

// EventLogStats is the monitoring view of an EventLog.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns counters for monitoring. A nil log reports zeros.
func (el *EventLog) Stats() EventLogStats {
	if el == nil {
		return EventLogStats{}
	}
	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: len(el.events),
		Running: el.running.Load(),
	}
}
