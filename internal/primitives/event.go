package primitives

// Event is a discrete occurrence delivered to the pilot engine.
type Event int

const (
	EventVelocityRequested Event = iota
	EventCheckRequested
	EventVelocityIsZero
	EventVelocityIsNonZero
	EventBumped
	EventNotBumped
	EventStopRequested
)

var eventNames = []string{
	"VelocityRequested",
	"CheckRequested",
	"VelocityIsZero",
	"VelocityIsNonZero",
	"Bumped",
	"NotBumped",
	"StopRequested",
}

// AllEvents lists every declared event in declaration order.
func AllEvents() []Event {
	out := make([]Event, len(eventNames))
	for i := range out {
		out[i] = Event(i)
	}
	return out
}

func (e Event) String() string { return nameOf("Event", eventNames, int(e)) }

// Valid reports whether e is a declared event.
func (e Event) Valid() bool { return e >= 0 && int(e) < len(eventNames) }

func (e Event) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *Event) UnmarshalText(b []byte) error {
	i, err := indexOf("event", eventNames, string(b))
	if err != nil {
		return err
	}
	*e = Event(i)
	return nil
}

// Message is the fixed-shape record carried by the mailbox.
//
// Velocity is only meaningful for EventVelocityRequested. Halt marks an
// emergency stop that must also zero the wheels. Epoch is the emergency stop
// generation the message was issued in; a velocity request from an earlier
// generation than the engine's is processed as a zero vector.
type Message struct {
	Event    Event          `json:"event" yaml:"event"`
	Velocity VelocityVector `json:"velocity" yaml:"velocity"`
	Halt     bool           `json:"halt,omitempty" yaml:"halt,omitempty"`
	Epoch    uint64         `json:"epoch,omitempty" yaml:"epoch,omitempty"`
}

// NewMessage creates a Message carrying only an event tag.
func NewMessage(e Event) Message {
	return Message{Event: e, Velocity: ZeroVelocity()}
}
