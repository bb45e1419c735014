package deploy

import (
	"sort"
	"sync"
)

// EventKind is the stage of a deployment that an Event describes.
type EventKind string

const (
	// EventStarted is emitted once the deploy location has been validated.
	EventStarted EventKind = "started"

	// EventProgress is emitted after each copy attempt.
	EventProgress EventKind = "progress"

	// EventFinished is emitted when a deployment succeeds.
	EventFinished EventKind = "finished"

	// EventFailed is emitted when a deployment fails or aborts after starting.
	EventFailed EventKind = "failed"
)

// Event describes the progress of a deployment.
type Event struct {
	Kind   EventKind
	Mode   Mode
	Target Target

	// Total is the number of files being copied. It's zero until the files
	// have been resolved.
	Total int

	// Completed and Outcome are only set for EventProgress.
	Completed int
	Outcome   *TransferOutcome

	// Result is set for EventFinished and EventFailed.
	Result *Result

	// Err is set for EventFailed if the deployment aborted.
	Err error
}

// Listener receives deployment events. It's called synchronously from the
// goroutine running the deployment, so it should return quickly.
type Listener func(Event)

type broadcaster struct {
	lock      sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func (b *broadcaster) subscribe(l Listener) (unsubscribe func()) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.listeners == nil {
		b.listeners = map[int]Listener{}
	}

	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		delete(b.listeners, id)
	}
}

func (b *broadcaster) emit(e Event) {
	b.lock.Lock()
	var ids []int
	for id := range b.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, b.listeners[id])
	}
	b.lock.Unlock()

	for _, l := range listeners {
		l(e)
	}
}
