package primitives

// Action identifies the side effect run when a transition fires.
type Action int

const (
	ActionNoOp Action = iota
	ActionApplyVelocity
	ActionCheckBump
	ActionStop
)

var actionNames = []string{
	"NoOp",
	"ApplyVelocity",
	"CheckBump",
	"Stop",
}

// AllActions lists every declared action. Dispatchers must cover all of them.
func AllActions() []Action {
	out := make([]Action, len(actionNames))
	for i := range out {
		out[i] = Action(i)
	}
	return out
}

func (a Action) String() string { return nameOf("Action", actionNames, int(a)) }

// Valid reports whether a is a declared action.
func (a Action) Valid() bool { return a >= 0 && int(a) < len(actionNames) }

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	i, err := indexOf("action", actionNames, string(b))
	if err != nil {
		return err
	}
	*a = Action(i)
	return nil
}
