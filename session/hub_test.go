package session

import (
	"testing"
	"time"
)

func TestSlowClientDroppedWithoutBlockingHub(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	slow := hub.NewClient(nil)
	slow.Send = make(chan []byte)
	hub.Register(slow)

	if err := hub.Broadcast(MsgTypeState, map[string]string{"state": "playing"}); err != nil {
		t.Fatal(err)
	}

	// the hub must keep serving registrations after dropping the
	// client whose buffer could not take the frame
	registered := make(chan struct{})
	go func() {
		hub.Register(hub.NewClient(nil))
		close(registered)
	}()

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("hub stopped accepting registrations after broadcasting to a full client")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want 1 after the slow client is dropped", hub.ClientCount())
		}
		time.Sleep(2 * time.Millisecond)
	}

	if _, open := <-slow.Send; open {
		t.Error("dropped client's send channel still open")
	}
}
