// Package capture is the client-side event tracker. A single goroutine owns
// all buffering and enrichment state, so callers never need locks and never
// block on tracking.
package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lai-labs/spyglass/internal/events"
)

const (
	// DefaultFlushInterval is how often buffered events are shipped
	DefaultFlushInterval = 5 * time.Second
	// DefaultIdleThreshold is how long without activity counts as idle
	DefaultIdleThreshold = 60 * time.Second

	// rageCount clicks on the same element within rageWindow synthesize a
	// rage_click at capture time, ahead of server-side detection
	rageCount  = 5
	rageWindow = 3000 * time.Millisecond

	// maxBuffered caps the local buffer; when exceeded the oldest
	// dropBatch events are discarded
	maxBuffered = 500
	dropBatch   = 100

	// inboxSize bounds the handoff channel between callers and the loop
	inboxSize = 256
)

// exportVocabulary marks click targets that represent a data export
var exportVocabulary = []string{"download", "export", "csv", "excel", "xlsx"}

// Config configures a Tracker. Zero-value intervals take the defaults.
type Config struct {
	// Endpoint is the full URL events are POSTed to
	Endpoint  string
	TenantID  string
	UserID    string
	SessionID string

	FlushInterval time.Duration
	IdleThreshold time.Duration

	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
}

// batchPayload is the wire format of one flush
type batchPayload struct {
	Events []*events.BehaviorEvent `json:"events"`
}

// Tracker buffers events and ships them in batches. All methods are safe
// for concurrent use and never block.
type Tracker struct {
	cfg    Config
	client *http.Client

	inbox  chan *events.BehaviorEvent
	done   chan struct{}
	exited chan struct{}

	dropped atomic.Int64

	// state below is owned by the run goroutine
	buffer       []*events.BehaviorEvent
	clicks       map[string][]time.Time
	lastActivity time.Time
}

// New creates a tracker and starts its run loop
func New(cfg Config) *Tracker {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	t := &Tracker{
		cfg:          cfg,
		client:       client,
		inbox:        make(chan *events.BehaviorEvent, inboxSize),
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
		clicks:       make(map[string][]time.Time),
		lastActivity: time.Now(),
	}
	go t.run()
	return t
}

// Track queues an event. When the inbox is full the event is dropped and
// counted; tracking must never slow the instrumented application down.
func (t *Tracker) Track(e *events.BehaviorEvent) {
	select {
	case <-t.done:
		t.dropped.Add(1)
		return
	default:
	}
	select {
	case t.inbox <- e:
	default:
		t.dropped.Add(1)
	}
}

// Click tracks a pointer click
func (t *Tracker) Click(screen, element string) {
	t.Track(events.New(t.cfg.SessionID, events.EventTypeClick, screen, element, nil))
}

// Navigate tracks a screen change
func (t *Tracker) Navigate(from, to string) {
	t.Track(events.NewNavigate(t.cfg.SessionID, from, to))
}

// Error tracks a client-side error
func (t *Tracker) Error(screen string, meta events.ErrorMetadata) {
	t.Track(events.NewError(t.cfg.SessionID, screen, meta))
}

// Dropped reports how many events were discarded due to backpressure
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// Close stops the loop after one final flush. Events tracked after Close
// are dropped.
func (t *Tracker) Close() {
	select {
	case <-t.done:
		return
	default:
		close(t.done)
	}
	<-t.exited
}

func (t *Tracker) run() {
	defer close(t.exited)

	flush := time.NewTicker(t.cfg.FlushInterval)
	defer flush.Stop()
	idle := time.NewTicker(t.cfg.IdleThreshold)
	defer idle.Stop()

	for {
		select {
		case e := <-t.inbox:
			t.ingest(e)
		case <-flush.C:
			t.flush()
		case <-idle.C:
			t.checkIdle()
		case <-t.done:
			t.drainInbox()
			t.flush()
			return
		}
	}
}

func (t *Tracker) drainInbox() {
	for {
		select {
		case e := <-t.inbox:
			t.ingest(e)
		default:
			return
		}
	}
}

// ingest enriches one event and appends it to the buffer
func (t *Tracker) ingest(e *events.BehaviorEvent) {
	if t.cfg.TenantID != "" {
		e.TenantID = t.cfg.TenantID
	}
	if t.cfg.UserID != "" {
		e.UserID = t.cfg.UserID
	}
	if e.Type != events.EventTypeIdle {
		t.lastActivity = e.Timestamp
	}

	t.append(e)

	if e.Type == events.EventTypeClick && e.Element != "" {
		if synthetic := t.detectRage(e); synthetic != nil {
			t.append(synthetic)
		}
		if isExportElement(e.Element) {
			export := events.New(e.SessionID, events.EventTypeExport, e.Screen, e.Element,
				map[string]interface{}{"via": "click"})
			export.TenantID = e.TenantID
			export.UserID = e.UserID
			t.append(export)
		}
	}
}

func (t *Tracker) append(e *events.BehaviorEvent) {
	t.buffer = append(t.buffer, e)
	if len(t.buffer) > maxBuffered {
		t.buffer = append(t.buffer[:0], t.buffer[dropBatch:]...)
		t.dropped.Add(dropBatch)
		slog.Warn("capture buffer full, dropped oldest events", "dropped", dropBatch)
	}
}

// detectRage returns a synthetic rage_click once per burst of rageCount
// clicks on the same element within rageWindow
func (t *Tracker) detectRage(e *events.BehaviorEvent) *events.BehaviorEvent {
	now := e.Timestamp
	recent := t.clicks[e.Element]
	kept := recent[:0]
	for _, ts := range recent {
		if now.Sub(ts) <= rageWindow {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	if len(kept) < rageCount {
		t.clicks[e.Element] = kept
		return nil
	}
	windowMs := now.Sub(kept[0]).Milliseconds()
	delete(t.clicks, e.Element)
	rage := events.NewRageClick(e.SessionID, e.Screen, e.Element, len(kept), windowMs)
	rage.TenantID = e.TenantID
	rage.UserID = e.UserID
	return rage
}

func isExportElement(element string) bool {
	lower := strings.ToLower(element)
	for _, word := range exportVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// checkIdle emits one idle event per quiet interval
func (t *Tracker) checkIdle() {
	idleFor := time.Since(t.lastActivity)
	if idleFor < t.cfg.IdleThreshold {
		return
	}
	e := events.New(t.cfg.SessionID, events.EventTypeIdle, "", "",
		map[string]interface{}{"idle_ms": idleFor.Milliseconds()})
	if t.cfg.TenantID != "" {
		e.TenantID = t.cfg.TenantID
	}
	if t.cfg.UserID != "" {
		e.UserID = t.cfg.UserID
	}
	t.append(e)
}

// flush ships the buffer. Delivery is at least once: a failed POST keeps
// the batch buffered for the next attempt.
func (t *Tracker) flush() {
	if len(t.buffer) == 0 {
		return
	}
	batch := t.buffer
	t.buffer = nil

	if err := t.post(batch); err != nil {
		slog.Warn("event flush failed, requeueing batch", "events", len(batch), "error", err)
		t.buffer = append(batch, t.buffer...)
		if len(t.buffer) > maxBuffered {
			over := len(t.buffer) - maxBuffered
			t.buffer = t.buffer[over:]
			t.dropped.Add(int64(over))
		}
	}
}

func (t *Tracker) post(batch []*events.BehaviorEvent) error {
	body, err := json.Marshal(batchPayload{Events: batch})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	resp, err := t.client.Post(t.cfg.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to POST events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event endpoint returned %d", resp.StatusCode)
	}
	return nil
}
