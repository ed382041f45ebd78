package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alxayo/decoder-pipeline/internal/codecapi"
)

func TestPublishDispatchesToSubscribedObservers(t *testing.T) {
	m := NewManager(4, nil)
	var got int32
	var wg sync.WaitGroup
	wg.Add(1)
	m.Subscribe(TypeFormatChanged, ObserverFunc(func(ctx context.Context, ev Event) {
		defer wg.Done()
		atomic.AddInt32(&got, 1)
	}))

	m.Publish(context.Background(), Event{Type: TypeFormatChanged, StreamID: "s1", Category: codecapi.CategoryVideo})
	wg.Wait()

	if atomic.LoadInt32(&got) != 1 {
		t.Fatalf("got = %d, want 1", got)
	}
}

func TestPublishIgnoresUnsubscribedTypes(t *testing.T) {
	m := NewManager(4, nil)
	called := false
	m.Subscribe(TypeFormatChanged, ObserverFunc(func(ctx context.Context, ev Event) {
		called = true
	}))

	m.Publish(context.Background(), Event{Type: TypeStreamErrored})
	m.Close()

	if called {
		t.Fatal("observer for a different event type should not be called")
	}
}

func TestMultipleObserversAllReceiveEvent(t *testing.T) {
	m := NewManager(4, nil)
	var count int32
	for i := 0; i < 3; i++ {
		m.Subscribe(TypeDrained, ObserverFunc(func(ctx context.Context, ev Event) {
			atomic.AddInt32(&count, 1)
		}))
	}
	m.Publish(context.Background(), Event{Type: TypeDrained})
	m.Close()

	if atomic.LoadInt32(&count) != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestCloseWaitsForInFlightDispatch(t *testing.T) {
	m := NewManager(1, nil)
	started := make(chan struct{})
	m.Subscribe(TypeFlushed, ObserverFunc(func(ctx context.Context, ev Event) {
		close(started)
		time.Sleep(20 * time.Millisecond)
	}))

	m.Publish(context.Background(), Event{Type: TypeFlushed})
	<-started
	m.Close() // should not return until the sleeping observer finishes
}
