package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"phasebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNoticeBus_EmitAndReceive(t *testing.T) {
	nb := NewNoticeBus(testLogger())

	var received int32
	nb.On(NoticeRunStarted, func(n Notice) {
		if n.Payload["run_id"] != "r1" {
			t.Errorf("payload = %v", n.Payload)
		}
		atomic.AddInt32(&received, 1)
	})

	nb.Emit(Notice{Type: NoticeRunStarted, Payload: map[string]any{"run_id": "r1"}})

	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("expected 1 notice received, got %d", received)
	}
}

func TestNoticeBus_WildcardHandler(t *testing.T) {
	nb := NewNoticeBus(testLogger())

	var count int32
	nb.On("*", func(n Notice) {
		atomic.AddInt32(&count, 1)
	})

	nb.Emit(Notice{Type: "event.a"})
	nb.Emit(Notice{Type: "event.b"})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestNoticeBus_Off(t *testing.T) {
	nb := NewNoticeBus(testLogger())

	var first, second int32
	id := nb.On("test", func(n Notice) { atomic.AddInt32(&first, 1) })
	nb.On("test", func(n Notice) { atomic.AddInt32(&second, 1) })

	nb.Emit(Notice{Type: "test"})
	nb.Off("test", id)
	nb.Emit(Notice{Type: "test"})

	if atomic.LoadInt32(&first) != 1 {
		t.Errorf("expected 1 after unsubscribe, got %d", first)
	}
	if atomic.LoadInt32(&second) != 2 {
		t.Errorf("remaining handler should still fire, got %d", second)
	}
}

func TestNoticeBus_Replay(t *testing.T) {
	nb := NewNoticeBus(testLogger())

	nb.Emit(Notice{Type: "a"})
	nb.Emit(Notice{Type: "b"})
	nb.Emit(Notice{Type: "a"})

	if got := len(nb.Replay("a", time.Time{})); got != 2 {
		t.Errorf("expected 2 'a' notices, got %d", got)
	}
	if got := len(nb.Replay("*", time.Time{})); got != 3 {
		t.Errorf("expected 3 total notices, got %d", got)
	}
}

func TestNoticeBus_ReplaySince(t *testing.T) {
	nb := NewNoticeBus(testLogger())

	nb.Emit(Notice{Type: "old", Timestamp: time.Now().Add(-time.Hour)})
	threshold := time.Now()
	nb.Emit(Notice{Type: "new"})

	if got := len(nb.Replay("*", threshold)); got != 1 {
		t.Errorf("expected 1 notice since threshold, got %d", got)
	}
}

func TestNoticeBus_HistoryLimit(t *testing.T) {
	nb := NewNoticeBus(testLogger())
	nb.maxHistory = 5

	for i := 0; i < 10; i++ {
		nb.Emit(Notice{Type: "test"})
	}

	if nb.HistoryLen() != 5 {
		t.Errorf("expected 5, got %d", nb.HistoryLen())
	}
}

func TestNoticeBus_PanicRecovery(t *testing.T) {
	nb := NewNoticeBus(testLogger())

	var after int32
	nb.On("panic", func(n Notice) { panic("test panic") })
	nb.On("panic", func(n Notice) { atomic.AddInt32(&after, 1) })

	nb.Emit(Notice{Type: "panic"})
	if atomic.LoadInt32(&after) != 1 {
		t.Error("handler after a panicking one should still run")
	}
}

func TestNoticeBus_NilIsNoop(t *testing.T) {
	var nb *NoticeBus
	nb.Emit(Notice{Type: "anything"})
}

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(2, testLogger())
	ev := &domain.Event{Kind: domain.EventMessage, Text: "hi", MessageID: "m1"}
	b.Publish(ev)

	select {
	case got := <-b.Subscribe():
		if got != ev {
			t.Errorf("got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestInMemoryBus_CloseEndsSubscription(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()
	b.Publish(&domain.Event{Text: "late"})

	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed channel")
	}
}
