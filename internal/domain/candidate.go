package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

var ErrUnknownCandidateType = errors.New("unknown candidate type")

type CandidateType string

const (
	CandidateHost            CandidateType = "host"
	CandidatePeerReflexive   CandidateType = "prflx"
	CandidateServerReflexive CandidateType = "srflx"
	CandidateRelayed         CandidateType = "relay"
)

func ParseCandidateType(s string) (CandidateType, error) {
	switch CandidateType(s) {
	case CandidateHost, CandidatePeerReflexive, CandidateServerReflexive, CandidateRelayed:
		return CandidateType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCandidateType, s)
}

// Precedence orders candidate types for insertion: host first, relayed last.
// Peer-reflexive shares the reflexive rank.
func (t CandidateType) Precedence() int {
	switch t {
	case CandidateHost:
		return 0
	case CandidatePeerReflexive, CandidateServerReflexive:
		return 1
	case CandidateRelayed:
		return 2
	}
	return 3
}

// Candidate is a transport candidate as carried on the wire.
type Candidate struct {
	Component  uint16        `json:"component"`
	Foundation string        `json:"foundation"`
	Priority   uint32        `json:"priority"`
	IP         string        `json:"ip"`
	Port       int           `json:"port"`
	Protocol   string        `json:"protocol"`
	Type       CandidateType `json:"type"`
	Generation int           `json:"generation"`
	ID         string        `json:"id,omitempty"`
	Network    int           `json:"network,omitempty"`
	RelAddr    string        `json:"rel-addr,omitempty"`
	RelPort    int           `json:"rel-port,omitempty"`
}

// HasRelated reports whether the candidate declares a related address and port.
func (c Candidate) HasRelated() bool {
	return c.RelAddr != "" && c.RelPort > 0
}

func (c Candidate) Address() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}

func (c Candidate) String() string {
	s := fmt.Sprintf("%s %d %s %s", c.Type, c.Component, c.Protocol, c.Address())
	if c.HasRelated() {
		s += " rel " + net.JoinHostPort(c.RelAddr, strconv.Itoa(c.RelPort))
	}
	return s
}
