// Package viewstate holds the per-view fetch state machines. Reducers are
// pure; the effectful side lives in Store and the controllers.
package viewstate

// State is the fetch lifecycle of one payload. Idle is the zero value,
// Loading is set between a start and its outcome, and Data survives
// refetches until a newer success replaces it.
type State[T any] struct {
	Data    T      `json:"data"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Action is the closed set of messages the reducers understand.
type Action interface {
	action()
}

type FetchStart struct{}

type FetchSuccess[T any] struct {
	Payload T
}

type FetchError struct {
	Message string
}

func (FetchStart) action()      {}
func (FetchSuccess[T]) action() {}
func (FetchError) action()      {}

// Reduce applies a fetch action. Any other action, including a success
// carrying a different payload type, returns s unchanged.
func Reduce[T any](s State[T], a Action) State[T] {
	switch a := a.(type) {
	case FetchStart:
		s.Loading = true
		s.Error = ""
	case FetchSuccess[T]:
		s.Data = a.Payload
		s.Loading = false
		s.Error = ""
	case FetchError:
		s.Loading = false
		s.Error = a.Message
	}
	return s
}

// Replay folds actions over an initial state.
func Replay[S any](initial S, reduce func(S, Action) S, actions ...Action) S {
	state := initial
	for _, a := range actions {
		state = reduce(state, a)
	}
	return state
}
