package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/louisbranch/questline/internal/services/engine/domain"
)

func TestLogSink(t *testing.T) {
	var logged []string
	sink := &LogSink{Logf: func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}}

	notification := domain.Notification{
		ParticipantID: "p1",
		Kind:          domain.NotificationRankUp,
		Payload:       map[string]string{"level": "2"},
	}
	if err := sink.Notify(context.Background(), notification); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if len(logged) != 1 {
		t.Fatalf("got %d log lines, want 1", len(logged))
	}

	unread, err := sink.HasUnread(context.Background(), "p1", domain.NotificationRankUp)
	if err != nil {
		t.Fatalf("HasUnread returned error: %v", err)
	}
	if unread {
		t.Fatal("log sink should never report unread notifications")
	}
}

func TestMemorySinkUnreadAndAck(t *testing.T) {
	sink := &MemorySink{}
	ctx := context.Background()

	notifications := []domain.Notification{
		{ParticipantID: "p1", Kind: domain.NotificationRankProgress},
		{ParticipantID: "p2", Kind: domain.NotificationRankUp},
	}
	for _, notification := range notifications {
		if err := sink.Notify(ctx, notification); err != nil {
			t.Fatalf("Notify returned error: %v", err)
		}
	}

	unread, err := sink.HasUnread(ctx, "p1", domain.NotificationRankProgress)
	if err != nil {
		t.Fatalf("HasUnread returned error: %v", err)
	}
	if !unread {
		t.Fatal("p1 should have an unread rank progress nudge")
	}
	unread, err = sink.HasUnread(ctx, "p1", domain.NotificationRankUp)
	if err != nil {
		t.Fatalf("HasUnread returned error: %v", err)
	}
	if unread {
		t.Fatal("p1 has no rank up notification")
	}

	acked := sink.Ack("p1")
	if len(acked) != 1 {
		t.Fatalf("acked %d notifications, want 1", len(acked))
	}
	unread, err = sink.HasUnread(ctx, "p1", domain.NotificationRankProgress)
	if err != nil {
		t.Fatalf("HasUnread returned error: %v", err)
	}
	if unread {
		t.Fatal("ack should clear p1's unread notifications")
	}
	if len(sink.All()) != 1 {
		t.Fatalf("buffer should still hold p2's notification, got %d", len(sink.All()))
	}
}

func TestDispatcherDeliversAsync(t *testing.T) {
	sink := &MemorySink{}
	dispatcher := NewDispatcher(sink, 4, func(string, ...any) {})

	var batch []domain.Notification
	for i := 0; i < 10; i++ {
		batch = append(batch, domain.Notification{
			ParticipantID: fmt.Sprintf("p%d", i),
			Kind:          domain.NotificationMissionCompleted,
		})
	}
	dispatcher.Dispatch(context.Background(), batch)
	dispatcher.Wait()

	if got := len(sink.All()); got != 10 {
		t.Fatalf("delivered %d notifications, want 10", got)
	}
}

func TestDispatcherLogsFailures(t *testing.T) {
	var mu sync.Mutex
	var logged []string
	dispatcher := NewDispatcher(failingSink{}, 1, func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, fmt.Sprintf(format, args...))
	})

	dispatcher.Dispatch(context.Background(), []domain.Notification{
		{ParticipantID: "p1", Kind: domain.NotificationMissionApproved},
	})
	dispatcher.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(logged) != 1 {
		t.Fatalf("got %d log lines, want 1", len(logged))
	}
}

type failingSink struct{}

func (failingSink) Notify(context.Context, domain.Notification) error {
	return fmt.Errorf("sink unavailable")
}

func (failingSink) HasUnread(context.Context, string, domain.NotificationKind) (bool, error) {
	return false, nil
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var dispatcher *Dispatcher
	dispatcher.Dispatch(context.Background(), []domain.Notification{{ParticipantID: "p1"}})
	dispatcher.Wait()
	unread, err := dispatcher.HasUnread(context.Background(), "p1", domain.NotificationRankUp)
	if err != nil {
		t.Fatalf("HasUnread returned error: %v", err)
	}
	if unread {
		t.Fatal("nil dispatcher should report no unread notifications")
	}
}
