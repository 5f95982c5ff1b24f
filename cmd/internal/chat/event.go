package chat

// EventKind discriminates the three broadcast event types.
type EventKind uint8

const (
	// KindJoined announces a session that claimed its name and went active.
	KindJoined EventKind = iota + 1
	// KindLeft announces a session teardown.
	KindLeft
	// KindText carries one chat message from a named session.
	KindText
)

func (k EventKind) String() string {
	switch k {
	case KindJoined:
		return "joined"
	case KindLeft:
		return "left"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Event is one bus entry. Immutable once published; every subscriber
// observes identical content.
type Event struct {
	Kind EventKind
	Name string
	Body string // set only for KindText
}

// Joined builds the announcement event for a session entering the room.
func Joined(name string) Event { return Event{Kind: KindJoined, Name: name} }

// Left builds the announcement event for a session leaving the room.
func Left(name string) Event { return Event{Kind: KindLeft, Name: name} }

// Text builds a chat message event.
func Text(name, body string) Event { return Event{Kind: KindText, Name: name, Body: body} }

// String renders the single text frame peers see for this event.
func (e Event) String() string {
	switch e.Kind {
	case KindJoined:
		return e.Name + " joined."
	case KindLeft:
		return e.Name + " left."
	case KindText:
		return e.Name + ": " + e.Body
	default:
		return ""
	}
}
