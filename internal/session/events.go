package session

import "github.com/jwulff/panelscribe/internal/interview"

// EventKind identifies what changed.
type EventKind int

const (
	EventSpeaker EventKind = iota
	EventTranscript
	EventQuestion
	EventState
	EventStatus
	EventDemo
	EventSaved
)

// Event is a change notification for the UI.
type Event struct {
	Kind       EventKind
	Speaker    string // EventSpeaker; "" means none selected
	Selected   bool   // EventSpeaker
	QuestionID string // EventTranscript, EventQuestion
	Current    bool   // EventTranscript: the question is on screen
	State      interview.State
	Message    string // EventStatus
	Error      bool   // EventStatus
	Trigger    string // EventSaved
}

// Observer receives events. Notify must not block or call back into the
// machine's transition methods.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Notify(Event) {}

// ChanObserver buffers events on a channel, dropping when full.
type ChanObserver struct {
	C chan Event
}

// NewChanObserver returns an observer with the given buffer size.
func NewChanObserver(size int) *ChanObserver {
	return &ChanObserver{C: make(chan Event, size)}
}

func (o *ChanObserver) Notify(e Event) {
	select {
	case o.C <- e:
	default:
	}
}
