package conversation

// InputKind is the free-text input a state accepts, if any.
type InputKind uint8

const (
	InputNone InputKind = iota
	InputName
	InputEmail
	InputCode
	InputFile
)

func (k InputKind) String() string {
	switch k {
	case InputName:
		return "name"
	case InputEmail:
		return "email"
	case InputCode:
		return "code"
	case InputFile:
		return "file"
	default:
		return "none"
	}
}

// Affordances is what the UI should offer right now.
type Affordances struct {
	State        State
	Input        InputKind
	InputEnabled bool
	// Buttons are the legal events that take no typed input.
	Buttons []Event
}

var inputEvent = map[State]struct {
	kind  InputKind
	event Event
}{
	CollectingName:  {InputName, EventSubmitName},
	CollectingEmail: {InputEmail, EventSubmitEmail},
	AwaitingCode:    {InputCode, EventSubmitCode},
	Uploading:       {InputFile, EventUploadDone},
}

// AffordancesFor returns the affordances of s with nothing pending.
func AffordancesFor(s State) Affordances {
	a := Affordances{State: s}
	in, hasInput := inputEvent[s]
	if hasInput {
		a.Input = in.kind
		a.InputEnabled = true
	}
	for _, e := range Events(s) {
		if hasInput && e == in.event {
			continue
		}
		a.Buttons = append(a.Buttons, e)
	}
	return a
}

// Affordances returns what the UI should offer. While a server call is in
// flight, input is disabled and no buttons are offered.
func (m *Machine) Affordances() Affordances {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending {
		a := Affordances{State: m.state}
		if in, ok := inputEvent[m.state]; ok {
			a.Input = in.kind
		}
		return a
	}
	return AffordancesFor(m.state)
}
