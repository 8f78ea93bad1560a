package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversOnlyToSubscribedClients(t *testing.T) {
	b := New()
	idA, chA, unA := b.Register()
	defer unA()
	idB, chB, unB := b.Register()
	defer unB()

	b.Subscribe(idA, "sess-1")
	b.Subscribe(idB, "sess-2")

	b.Emit("sess-1", "diff-changed", map[string]any{"n": 1})

	select {
	case ev := <-chA:
		assert.Equal(t, "diff-changed", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event on subscribed client A")
	}

	select {
	case <-chB:
		t.Fatal("client B should not receive sess-1 events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitNeverBlocksOnFullClientBuffer(t *testing.T) {
	b := New()
	id, _, unregister := b.Register()
	defer unregister()
	b.Subscribe(id, "sess-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer+10; i++ {
			b.Emit("sess-1", "heartbeat", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full client buffer")
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	b := New()
	_, ch, unregister := b.Register()
	unregister()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unregister")
}

func TestBroadcastAllReachesEveryClient(t *testing.T) {
	b := New()
	_, chA, unA := b.Register()
	defer unA()
	_, chB, unB := b.Register()
	defer unB()

	b.BroadcastAll("shutdown", nil)

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case ev := <-ch:
			assert.Equal(t, "shutdown", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("expected broadcast on every client")
		}
	}
}
