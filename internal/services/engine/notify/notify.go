// Package notify delivers progression notifications to participants and
// reviewers. Delivery is fire-and-forget; progression outcomes never depend
// on a notification reaching its sink.
package notify

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/questline/internal/services/engine/domain"
)

// Sink receives notifications and answers unread queries. HasUnread lets
// callers suppress repeat nudges of the same kind.
type Sink interface {
	Notify(ctx context.Context, notification domain.Notification) error
	HasUnread(ctx context.Context, participantID string, kind domain.NotificationKind) (bool, error)
}

// LogSink writes notifications to the process log. It is the default sink
// when no delivery channel is configured.
type LogSink struct {
	Logf func(format string, args ...any)
}

// Notify logs the notification.
func (s *LogSink) Notify(_ context.Context, notification domain.Notification) error {
	logf := log.Printf
	if s != nil && s.Logf != nil {
		logf = s.Logf
	}
	logf("notify participant=%s kind=%s payload=%v",
		notification.ParticipantID, notification.Kind, notification.Payload)
	return nil
}

// HasUnread always reports false; the log keeps no read state.
func (s *LogSink) HasUnread(context.Context, string, domain.NotificationKind) (bool, error) {
	return false, nil
}

// MemorySink buffers notifications in memory. Everything buffered counts as
// unread until Ack is called.
type MemorySink struct {
	mu     sync.Mutex
	buffer []domain.Notification
}

// Notify appends the notification to the buffer.
func (s *MemorySink) Notify(_ context.Context, notification domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, notification)
	return nil
}

// HasUnread reports whether the buffer holds a notification of the given
// kind for the participant.
func (s *MemorySink) HasUnread(_ context.Context, participantID string, kind domain.NotificationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, notification := range s.buffer {
		if notification.ParticipantID == participantID && notification.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

// Ack clears the participant's buffered notifications and returns them.
func (s *MemorySink) Ack(participantID string) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var acked, kept []domain.Notification
	for _, notification := range s.buffer {
		if notification.ParticipantID == participantID {
			acked = append(acked, notification)
			continue
		}
		kept = append(kept, notification)
	}
	s.buffer = kept
	return acked
}

// All returns a copy of the buffered notifications in delivery order.
func (s *MemorySink) All() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Dispatcher fans notifications out to a sink on background goroutines so
// request handlers return without waiting on delivery.
type Dispatcher struct {
	sink  Sink
	group *errgroup.Group
	logf  func(format string, args ...any)
}

// NewDispatcher wraps a sink with bounded asynchronous delivery.
func NewDispatcher(sink Sink, maxInFlight int, logf func(format string, args ...any)) *Dispatcher {
	if logf == nil {
		logf = log.Printf
	}
	group := &errgroup.Group{}
	if maxInFlight > 0 {
		group.SetLimit(maxInFlight)
	}
	return &Dispatcher{sink: sink, group: group, logf: logf}
}

// Dispatch queues notifications for delivery. Failures are logged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, notifications []domain.Notification) {
	if d == nil || d.sink == nil {
		return
	}
	for _, notification := range notifications {
		notification := notification
		d.group.Go(func() error {
			if err := d.sink.Notify(ctx, notification); err != nil {
				d.logf("notification delivery failed participant=%s kind=%s: %v",
					notification.ParticipantID, notification.Kind, err)
			}
			return nil
		})
	}
}

// HasUnread delegates to the wrapped sink.
func (d *Dispatcher) HasUnread(ctx context.Context, participantID string, kind domain.NotificationKind) (bool, error) {
	if d == nil || d.sink == nil {
		return false, nil
	}
	return d.sink.HasUnread(ctx, participantID, kind)
}

// Wait blocks until every queued notification has been delivered.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	_ = d.group.Wait()
}
