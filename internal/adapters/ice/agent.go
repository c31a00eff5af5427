package ice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoCandidates        = errors.New("no local candidates gathered")
	ErrNoRemoteCredentials = errors.New("remote credentials not set")
	ErrNotHarvested        = errors.New("media kind not harvested")
	ErrAgentClosed         = errors.New("agent closed")
)

type stream struct {
	kind        domain.MediaKind
	components  []*core.Component
	agents      map[uint16]*ice.Agent
	remoteUfrag string
	remotePwd   string
}

// Agent is the connectivity agent of one conference.
type Agent struct {
	conf   domain.ConferenceID
	engine *Engine
	ufrag  string
	pwd    string
	logger zerolog.Logger

	mu      sync.Mutex
	streams map[domain.MediaKind]*stream
	order   []domain.MediaKind
	closed  bool
}

func newAgent(conf domain.ConferenceID, engine *Engine, ufrag, pwd string) *Agent {
	return &Agent{
		conf:    conf,
		engine:  engine,
		ufrag:   ufrag,
		pwd:     pwd,
		logger:  log.With().Str("module", "adapters.ice").Str("conference", string(conf)).Logger(),
		streams: make(map[domain.MediaKind]*stream),
	}
}

func (a *Agent) Harvest(ctx context.Context, kind domain.MediaKind) ([]*core.Component, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrAgentClosed
	}
	if s, ok := a.streams[kind]; ok {
		return s.components, nil
	}

	s := &stream{kind: kind, agents: make(map[uint16]*ice.Agent)}
	for id := uint16(1); id <= uint16(a.engine.cfg.Components); id++ {
		ia, local, err := a.gather(ctx, id)
		if err != nil {
			closeAgents(s.agents)
			return nil, fmt.Errorf("%s component %d: %w", kind, id, err)
		}
		s.agents[id] = ia
		s.components = append(s.components, core.NewComponent(kind, id, local))
	}
	a.streams[kind] = s
	a.order = append(a.order, kind)
	a.logger.Info().Str("kind", string(kind)).Int("components", len(s.components)).Msg("harvested")
	return s.components, nil
}

// gather creates the ICE agent of one component and collects its local
// candidates until gathering completes.
func (a *Agent) gather(ctx context.Context, id uint16) (*ice.Agent, []domain.Candidate, error) {
	ia, err := ice.NewAgent(a.engine.agentConfig(a.ufrag, a.pwd))
	if err != nil {
		return nil, nil, err
	}

	found := make(chan ice.Candidate, 16)
	done := make(chan struct{})
	var once sync.Once
	if err := ia.OnCandidate(func(c ice.Candidate) {
		if c == nil {
			once.Do(func() { close(done) })
			return
		}
		select {
		case found <- c:
		case <-done:
		}
	}); err != nil {
		_ = ia.Close()
		return nil, nil, err
	}
	if err := ia.GatherCandidates(); err != nil {
		_ = ia.Close()
		return nil, nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, a.engine.cfg.GatherTimeout)
	defer cancel()

	var local []domain.Candidate
	collect := func(c ice.Candidate) {
		dc := toDomain(c)
		dc.Component = id
		local = append(local, dc)
	}
loop:
	for {
		select {
		case c := <-found:
			collect(c)
		case <-done:
			break loop
		case <-gctx.Done():
			a.logger.Warn().Uint16("component", id).Err(gctx.Err()).Msg("gathering cut short")
			break loop
		}
	}
	for drained := false; !drained; {
		select {
		case c := <-found:
			collect(c)
		default:
			drained = true
		}
	}
	once.Do(func() { close(done) })

	if len(local) == 0 {
		_ = ia.Close()
		return nil, nil, ErrNoCandidates
	}
	return ia, local, nil
}

func (a *Agent) Component(kind domain.MediaKind, id uint16) (*core.Component, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.streams[kind]
	if !ok {
		return nil, false
	}
	for _, c := range s.components {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (a *Agent) Components(kind domain.MediaKind) []*core.Component {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.streams[kind]; ok {
		return s.components
	}
	return nil
}

func (a *Agent) LocalCredentials() (string, string) { return a.ufrag, a.pwd }

func (a *Agent) SetRemoteCredentials(kind domain.MediaKind, ufrag, pwd string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.streams[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHarvested, kind)
	}
	s.remoteUfrag, s.remotePwd = ufrag, pwd
	return nil
}

// Generation is always 0; the agent never restarts.
func (a *Agent) Generation() int { return 0 }

// Establish hands the applied remote candidates to the ICE agents and runs
// the checks of every component concurrently. The outcome is Completed
// once every component has a selected pair.
func (a *Agent) Establish(ctx context.Context) (<-chan core.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrAgentClosed
	}
	if len(a.order) == 0 {
		return nil, ErrNotHarvested
	}

	type check struct {
		kind       domain.MediaKind
		id         uint16
		agent      *ice.Agent
		ufrag, pwd string
	}
	var checks []check
	for _, kind := range a.order {
		s := a.streams[kind]
		if s.remoteUfrag == "" || s.remotePwd == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoRemoteCredentials, kind)
		}
		for _, comp := range s.components {
			ia := s.agents[comp.ID]
			for _, rc := range comp.Remote() {
				cand, err := fromDomain(rc.Candidate)
				if err != nil {
					a.logger.Warn().Err(err).Str("candidate", rc.String()).Msg("skip remote candidate")
					continue
				}
				if err := ia.AddRemoteCandidate(cand); err != nil {
					a.logger.Warn().Err(err).Str("candidate", rc.String()).Msg("add remote candidate")
				}
			}
			checks = append(checks, check{kind: kind, id: comp.ID, agent: ia, ufrag: s.remoteUfrag, pwd: s.remotePwd})
		}
	}

	out := make(chan core.Outcome, 1)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		g.Go(func() error {
			if _, err := c.agent.Accept(gctx, c.ufrag, c.pwd); err != nil {
				return fmt.Errorf("%s component %d: %w", c.kind, c.id, err)
			}
			a.logger.Debug().Str("kind", string(c.kind)).Uint16("component", c.id).Msg("component connected")
			return nil
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			out <- core.Outcome{State: core.ConnectivityFailed, Err: err}
			return
		}
		a.logger.Info().Int("components", len(checks)).Msg("connectivity established")
		out <- core.Outcome{State: core.ConnectivityCompleted}
	}()
	return out, nil
}

func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	for _, kind := range a.order {
		errs = append(errs, closeAgents(a.streams[kind].agents))
	}
	a.streams = make(map[domain.MediaKind]*stream)
	a.order = nil
	return errors.Join(errs...)
}

func closeAgents(agents map[uint16]*ice.Agent) error {
	var errs []error
	for _, ia := range agents {
		if err := ia.Close(); err != nil && !errors.Is(err, ice.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
