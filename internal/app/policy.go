package app

import "github.com/dkeye/Recorder/internal/domain"

type FailureAction int

const (
	NoAction FailureAction = iota
	CloseSession
)

// Policy decides what happens to a session once it has failed.
type Policy interface {
	OnFailure(conf domain.ConferenceID, err error) FailureAction
}

type SimplePolicy struct {
	CloseOnFailure bool
}

func (p SimplePolicy) OnFailure(domain.ConferenceID, error) FailureAction {
	if p.CloseOnFailure {
		return CloseSession
	}
	return NoAction
}
