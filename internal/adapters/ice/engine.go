// Package ice implements connectivity agents on top of pion/ice. Every
// (media kind, component) pair gets its own ICE agent acting as the
// controlled side.
package ice

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/pion/logging"
	"github.com/pion/stun/v3"
	"github.com/rs/zerolog/log"
)

var ErrPortRange = errors.New("invalid port range")

type Config struct {
	PortMin       uint16
	PortMax       uint16
	Components    int
	STUNServers   []string
	GatherTimeout time.Duration
	LoggerFactory logging.LoggerFactory
}

// Engine creates agents sharing one configuration.
type Engine struct {
	cfg  Config
	urls []*stun.URI
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.PortMin > cfg.PortMax {
		return nil, fmt.Errorf("%w: %d-%d", ErrPortRange, cfg.PortMin, cfg.PortMax)
	}
	if cfg.Components <= 0 || cfg.Components > int(core.ComponentRTCP) {
		cfg.Components = int(core.ComponentRTCP)
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = 5 * time.Second
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = LoggerFactory{}
	}

	e := &Engine{cfg: cfg}
	for _, raw := range cfg.STUNServers {
		u, err := stun.ParseURI(raw)
		if err != nil {
			return nil, fmt.Errorf("stun server %q: %w", raw, err)
		}
		e.urls = append(e.urls, u)
	}
	log.Info().Str("module", "adapters.ice").
		Uint16("port_min", cfg.PortMin).
		Uint16("port_max", cfg.PortMax).
		Int("stun", len(e.urls)).
		Msg("engine ready")
	return e, nil
}

func (e *Engine) NewAgent(conf domain.ConferenceID) (core.Agent, error) {
	ufrag, pwd, err := generateCredentials()
	if err != nil {
		return nil, fmt.Errorf("generate credentials: %w", err)
	}
	return newAgent(conf, e, ufrag, pwd), nil
}

func (e *Engine) agentConfig(ufrag, pwd string) *ice.AgentConfig {
	candidateTypes := []ice.CandidateType{ice.CandidateTypeHost}
	if len(e.urls) > 0 {
		candidateTypes = append(candidateTypes, ice.CandidateTypeServerReflexive)
	}
	return &ice.AgentConfig{
		Urls:             e.urls,
		PortMin:          e.cfg.PortMin,
		PortMax:          e.cfg.PortMax,
		NetworkTypes:     []ice.NetworkType{ice.NetworkTypeUDP4},
		CandidateTypes:   candidateTypes,
		LocalUfrag:       ufrag,
		LocalPwd:         pwd,
		MulticastDNSMode: ice.MulticastDNSModeDisabled,
		LoggerFactory:    e.cfg.LoggerFactory,
	}
}
