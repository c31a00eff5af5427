package session

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// State is the negotiation lifecycle of one conference.
type State string

const (
	StateInit        State = "init"
	StateJoined      State = "joined"
	StateNegotiating State = "negotiating"
	StateConnected   State = "connected"
	StateFailed      State = "failed"
	StateTerminated  State = "terminated"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition other than terminate is possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateTerminated
}

const (
	evJoin      = "join"
	evInitiate  = "initiate"
	evConnect   = "connect"
	evFail      = "fail"
	evTerminate = "terminate"
)

func newMachine(onEnter func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateInit),
		fsm.Events{
			{Name: evJoin, Src: []string{string(StateInit)}, Dst: string(StateJoined)},
			{Name: evInitiate, Src: []string{string(StateJoined)}, Dst: string(StateNegotiating)},
			{Name: evConnect, Src: []string{string(StateNegotiating)}, Dst: string(StateConnected)},
			{Name: evFail, Src: []string{
				string(StateJoined),
				string(StateNegotiating),
				string(StateConnected),
			}, Dst: string(StateFailed)},
			{Name: evTerminate, Src: []string{
				string(StateInit),
				string(StateJoined),
				string(StateNegotiating),
				string(StateConnected),
				string(StateFailed),
			}, Dst: string(StateTerminated)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(State(e.Src), State(e.Dst))
			},
		},
	)
}

// isRejected reports whether err is the machine refusing an event in the
// current state.
func isRejected(err error) bool {
	var invalid fsm.InvalidEventError
	return errors.As(err, &invalid)
}
