package primitives

// State is a node of the pilot state machine.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCheckingIdleVelocity
	StateCheckingRunVelocity
	StateCheckingBump
	StateTerminated
)

var stateNames = []string{
	"Idle",
	"Running",
	"CheckingIdleVelocity",
	"CheckingRunVelocity",
	"CheckingBump",
	"Terminated",
}

// AllStates lists every declared state in declaration order.
func AllStates() []State {
	out := make([]State, len(stateNames))
	for i := range out {
		out[i] = State(i)
	}
	return out
}

func (s State) String() string { return nameOf("State", stateNames, int(s)) }

// Valid reports whether s is a declared state.
func (s State) Valid() bool { return s >= 0 && int(s) < len(stateNames) }

// Terminal reports whether s is the absorbing state.
func (s State) Terminal() bool { return s == StateTerminated }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	i, err := indexOf("state", stateNames, string(b))
	if err != nil {
		return err
	}
	*s = State(i)
	return nil
}
