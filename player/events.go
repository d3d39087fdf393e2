package player

import (
	"sync"

	"tunetube/model"
)

// EventType identifies what changed on the engine.
type EventType string

const (
	EventStateChanged         EventType = "state_changed"
	EventItemTransitioned     EventType = "item_transitioned"
	EventPlayWhenReadyChanged EventType = "play_when_ready_changed"
	EventTimelineChanged      EventType = "timeline_changed"
	EventPlaybackError        EventType = "playback_error"
)

// TransitionReason says why the current item changed.
type TransitionReason string

const (
	ReasonUser     TransitionReason = "user"
	ReasonAuto     TransitionReason = "auto"
	ReasonRepeat   TransitionReason = "repeat"
	ReasonAutoSkip TransitionReason = "auto_skip"
)

// Event carries the engine state relevant to the change that produced it.
type Event struct {
	Type          EventType
	State         State
	Index         int
	Track         *model.Track
	PlayWhenReady bool
	Reason        TransitionReason

	// Set on EventPlaybackError.
	Err         error
	FailedTrack *model.Track
	AutoSkipped bool
}

// Bus fans engine events out to subscribers. Delivery is synchronous on
// the publishing goroutine; subscribers must not block.
type Bus struct {
	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it again.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
