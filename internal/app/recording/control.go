package recording

import (
	"errors"
	"fmt"
)

const (
	Namespace = "http://jitsi.org/protocol/jirecon"
	Element   = "recording"
)

// Control attribute names.
const (
	AttrAction = "action"
	AttrStatus = "status"
	AttrMucJID = "mucjid"
	AttrOutput = "dst"
	AttrRID    = "rid"
)

var (
	ErrUnknownAction    = errors.New("unknown recording action")
	ErrMissingAttribute = errors.New("missing attribute")
)

type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
	ActionInfo  Action = "info"
)

func (a Action) String() string { return string(a) }

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionStart, ActionStop, ActionInfo:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

type Status string

const (
	StatusInitiating Status = "initiating"
	StatusStarted    Status = "started"
	StatusStopping   Status = "stopping"
	StatusStopped    Status = "stopped"
	StatusAborted    Status = "aborted"
)

func (s Status) String() string { return string(s) }

// Control is the attribute set of a recording control element.
type Control map[string]string

func NewControl(action Action) Control {
	return Control{AttrAction: action.String()}
}

func (c Control) Get(name string) string { return c[name] }

func (c Control) Set(name, value string) Control {
	c[name] = value
	return c
}

// Require returns the value of name or ErrMissingAttribute.
func (c Control) Require(name string) (string, error) {
	v := c[name]
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingAttribute, name)
	}
	return v, nil
}

func (c Control) Action() (Action, error) {
	return ParseAction(c[AttrAction])
}

func (c Control) Status() Status { return Status(c[AttrStatus]) }
