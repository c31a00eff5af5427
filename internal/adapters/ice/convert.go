package ice

import (
	"fmt"

	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/ice/v4"
)

func toDomain(c ice.Candidate) domain.Candidate {
	out := domain.Candidate{
		Component:  c.Component(),
		Foundation: c.Foundation(),
		Priority:   c.Priority(),
		IP:         c.Address(),
		Port:       c.Port(),
		Protocol:   c.NetworkType().NetworkShort(),
		Type:       domain.CandidateType(c.Type().String()),
		ID:         c.ID(),
	}
	if rel := c.RelatedAddress(); rel != nil {
		out.RelAddr = rel.Address
		out.RelPort = rel.Port
	}
	return out
}

func fromDomain(c domain.Candidate) (ice.Candidate, error) {
	network := c.Protocol
	if network == "" {
		network = "udp"
	}
	switch c.Type {
	case domain.CandidateHost:
		return ice.NewCandidateHost(&ice.CandidateHostConfig{
			Network:    network,
			Address:    c.IP,
			Port:       c.Port,
			Component:  c.Component,
			Priority:   c.Priority,
			Foundation: c.Foundation,
		})
	case domain.CandidateServerReflexive:
		return ice.NewCandidateServerReflexive(&ice.CandidateServerReflexiveConfig{
			Network:    network,
			Address:    c.IP,
			Port:       c.Port,
			Component:  c.Component,
			Priority:   c.Priority,
			Foundation: c.Foundation,
			RelAddr:    c.RelAddr,
			RelPort:    c.RelPort,
		})
	case domain.CandidatePeerReflexive:
		return ice.NewCandidatePeerReflexive(&ice.CandidatePeerReflexiveConfig{
			Network:    network,
			Address:    c.IP,
			Port:       c.Port,
			Component:  c.Component,
			Priority:   c.Priority,
			Foundation: c.Foundation,
			RelAddr:    c.RelAddr,
			RelPort:    c.RelPort,
		})
	case domain.CandidateRelayed:
		return ice.NewCandidateRelay(&ice.CandidateRelayConfig{
			Network:    network,
			Address:    c.IP,
			Port:       c.Port,
			Component:  c.Component,
			Priority:   c.Priority,
			Foundation: c.Foundation,
			RelAddr:    c.RelAddr,
			RelPort:    c.RelPort,
		})
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCandidateType, c.Type)
}
