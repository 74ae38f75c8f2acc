package realtime

import (
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/livechat-service/internal/presence"
)

// addTestClient inserts a client without a live socket; the write pump is
// never started so queued frames just sit in the buffer.
func addTestClient(h *Hub, id string, buf int) *Client {
	client := &Client{ID: id, send: make(chan outbound, buf)}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	return client
}

func newTestHub() *Hub {
	return NewHub(presence.NewRegistry(nil), nil, zap.NewNop(), 8)
}

func TestNotifyUnknownConnection(t *testing.T) {
	h := newTestHub()
	if err := h.Notify("missing", "receiveMessage", nil); err == nil {
		t.Fatalf("expected error for unknown connection")
	}
}

func TestNotifyAfterRemoveDoesNotPanic(t *testing.T) {
	h := newTestHub()
	client := addTestClient(h, "c1", 1)

	h.removeClient(client)

	// A caller that still holds the client reference must get an error,
	// not a send on the closed queue.
	if err := client.trySend(outbound{Event: "receiveMessage"}); err == nil {
		t.Fatalf("expected error sending to a closed client")
	}
	if err := h.Notify("c1", "receiveMessage", nil); err == nil {
		t.Fatalf("expected error for removed connection")
	}
}

func TestNotifyConcurrentWithRemove(t *testing.T) {
	h := newTestHub()

	for round := 0; round < 200; round++ {
		id := "c" + strconv.Itoa(round)
		client := addTestClient(h, id, 1)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					_ = h.Notify(id, "receiveMessage", j)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.removeClient(client)
		}()
		wg.Wait()

		// Idempotent; a second teardown of the same client is a no-op.
		h.removeClient(client)
	}
}

func TestNotifyFullBufferDropsFrame(t *testing.T) {
	h := newTestHub()
	addTestClient(h, "c1", 1)

	if err := h.Notify("c1", "receiveMessage", 1); err != nil {
		t.Fatalf("first frame should fit the buffer: %v", err)
	}
	if err := h.Notify("c1", "receiveMessage", 2); err == nil {
		t.Fatalf("expected error once the write queue is full")
	}
}
