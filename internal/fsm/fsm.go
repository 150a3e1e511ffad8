// Package fsm drives finite state machines described by Transition tables.
//
// A Transition table is indexed by state. Each entry lists the Event tags the state accepts,
// the function that computes the next state, and the states the machine is allowed to exit to.
package fsm

type selector interface {
	~int
}

// StateM is implemented by types that hold a current state.
type StateM[Sel selector] interface {
	State() Sel
	SetState(s Sel)
}

// Event is an input processed by a StateM.
type Event struct {
	Tag  string
	Data any
}

// TransitionFunc computes the next state of s when it receives evt.
type TransitionFunc[Sel selector, S StateM[Sel]] func(s S, evt Event) (Sel, error)

// Transition describes how a state reacts to Events.
type Transition[Sel selector, S StateM[Sel]] struct {
	Allow []string
	Call  TransitionFunc[Sel, S]
	Exit  []Sel
}

// Update passes evt to s using trs Transition table.
//
// It errors with ErrNotAllowed if evt is not allowed in the current state or if the computed next state
// is not a declared exit, in which case s state is unchanged.
// Otherwise s state is set to the computed next state and the TransitionFunc error is returned.
func Update[Sel selector, S StateM[Sel]](s S, trs []Transition[Sel, S], evt Event) error {
	sel := s.State()
	if sel < 0 || int(sel) >= len(trs) {
		return newError(ErrNotAllowed, "invalid inner state %d", sel)
	}

	tr := trs[int(sel)]
	var allowed bool
	for _, tag := range tr.Allow {
		if tag == evt.Tag {
			allowed = true
			break
		}
	}
	if !allowed {
		return newError(ErrNotAllowed, "Event %s not allowed in state %d", evt.Tag, sel)
	}

	var err error
	if nil != tr.Call {
		sel, err = tr.Call(s, evt)
	}

	allowed = false
	for _, exit := range tr.Exit {
		if exit == sel {
			allowed = true
			break
		}
	}
	if !allowed {
		return newError(ErrNotAllowed, "Exit %d not allowed", sel)
	}

	s.SetState(sel)

	return err
}
