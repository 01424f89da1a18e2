package server

import (
	"sync"

	"github.com/caffeineduck/plxrun/controller"
)

// StatusEvent is one controller state transition.
type StatusEvent struct {
	State  controller.State `json:"state"`
	Status string           `json:"status"`
}

// notifier fans status events out to SSE subscribers.
type notifier struct {
	mu        sync.RWMutex
	listeners map[chan StatusEvent]struct{}
}

func newNotifier() *notifier {
	return &notifier{listeners: make(map[chan StatusEvent]struct{})}
}

func (n *notifier) subscribe() chan StatusEvent {
	ch := make(chan StatusEvent, 8)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *notifier) unsubscribe(ch chan StatusEvent) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// broadcast never blocks; a subscriber with a full buffer misses the event.
func (n *notifier) broadcast(ev StatusEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}
