package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event is one lifecycle notification of a resolution session.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	SessionID string         `json:"session_id,omitempty"`
	Unit      string         `json:"unit,omitempty"`
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Data      map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeSessionStarted   = "session.started"
	EventTypeSessionCompleted = "session.completed"
	EventTypeSessionFailed    = "session.failed"
	EventTypeUnitEvaluated    = "unit.evaluated"
	EventTypeUnitFailed       = "unit.failed"
	EventTypeReload           = "watch.reload"
)

// Event levels, in increasing severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherStopped is returned by Publish after Shutdown.
var ErrPublisherStopped = errors.New("event publisher stopped")

// EventSubscriber handles one event.
type EventSubscriber func(event Event)

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// EventPublisher fans session events out to subscribers. Subscribers see
// events in publish order. A nil *EventPublisher drops everything.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	stopped     bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewEventPublisher creates a publisher. With EnableAsync, events are queued
// in a buffer of BufferSize and delivered from one goroutine.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("async events require a positive buffer size, got %d", cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{config: cfg, ctx: ctx, cancel: cancel}
	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep, nil
}

// Publish stamps event with an id and a timestamp and delivers it.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()
	if ep.stopped {
		return ErrPublisherStopped
	}
	for _, filter := range ep.filters {
		if !filter(event) {
			return nil
		}
	}

	if !ep.config.EnableAsync {
		ep.deliverLocked(event)
		return nil
	}
	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, %s dropped", event.Type)
	}
}

// PublishSessionStarted announces a new session for ref.
func (ep *EventPublisher) PublishSessionStarted(sessionID, ref string) error {
	return ep.Publish(Event{
		Type:      EventTypeSessionStarted,
		Source:    "engine",
		SessionID: sessionID,
		Unit:      ref,
		Message:   fmt.Sprintf("session %s started for %s", sessionID, ref),
		Level:     EventLevelInfo,
	})
}

// PublishSessionCompleted announces a resolved configuration.
func (ep *EventPublisher) PublishSessionCompleted(sessionID, ref string, keys int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeSessionCompleted,
		Source:    "engine",
		SessionID: sessionID,
		Unit:      ref,
		Message:   fmt.Sprintf("session %s resolved %d keys", sessionID, keys),
		Level:     EventLevelInfo,
		Data: map[string]any{
			"keys":     keys,
			"duration": duration.Seconds(),
		},
	})
}

// PublishSessionFailed announces a failed session and its error kind.
func (ep *EventPublisher) PublishSessionFailed(sessionID, ref, kind string, cause error) error {
	return ep.Publish(Event{
		Type:      EventTypeSessionFailed,
		Source:    "engine",
		SessionID: sessionID,
		Unit:      ref,
		Message:   fmt.Sprintf("session %s failed: %v", sessionID, cause),
		Level:     EventLevelError,
		Data: map[string]any{
			"kind":   kind,
			"reason": cause.Error(),
		},
	})
}

// PublishUnitEvaluated announces one unit evaluation. A non-nil cause makes it
// a unit.failed event.
func (ep *EventPublisher) PublishUnitEvaluated(sessionID, path, evaluator string, duration time.Duration, cause error) error {
	event := Event{
		Type:      EventTypeUnitEvaluated,
		Source:    "engine",
		SessionID: sessionID,
		Unit:      path,
		Message:   fmt.Sprintf("unit %s evaluated by %s", path, evaluator),
		Level:     EventLevelInfo,
		Data: map[string]any{
			"evaluator": evaluator,
			"duration":  duration.Seconds(),
		},
	}
	if cause != nil {
		event.Type = EventTypeUnitFailed
		event.Level = EventLevelError
		event.Message = fmt.Sprintf("unit %s failed: %v", path, cause)
		event.Data["reason"] = cause.Error()
	}
	return ep.Publish(event)
}

// PublishReload announces a filesystem change that triggers a new session.
func (ep *EventPublisher) PublishReload(path, op string) error {
	return ep.Publish(Event{
		Type:    EventTypeReload,
		Source:  "watch",
		Unit:    path,
		Message: fmt.Sprintf("%s %s", op, path),
		Level:   EventLevelInfo,
		Data:    map[string]any{"op": op},
	})
}

// Subscribe adds a subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

// AddFilter adds a filter applied to every event before delivery.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	ep.deliverLocked(event)
}

func (ep *EventPublisher) deliverLocked(event Event) {
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops accepting events and waits until buffered events are
// delivered or ctx is done.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}
	ep.mu.Lock()
	if ep.stopped {
		ep.mu.Unlock()
		return nil
	}
	ep.stopped = true
	ep.mu.Unlock()
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

// FilterByLevel accepts events at minLevel or above.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	threshold := levels[minLevel]
	return func(event Event) bool {
		return levels[event.Level] >= threshold
	}
}

// FilterByType accepts events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool {
		return set[event.Type]
	}
}

// FilterBySession accepts events of one session.
func FilterBySession(sessionID string) EventFilter {
	return func(event Event) bool {
		return event.SessionID == sessionID
	}
}

// JSONLinesSubscriber writes each event as one JSON line to w. Write errors
// are reported to onError when it is non-nil.
func JSONLinesSubscriber(w io.Writer, onError func(error)) EventSubscriber {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(event); err != nil && onError != nil {
			onError(err)
		}
	}
}
