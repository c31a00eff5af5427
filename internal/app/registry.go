package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Recorder/internal/app/metrics"
	"github.com/dkeye/Recorder/internal/app/session"
	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrJoinFailed      = session.ErrJoinFailed
)

type sessionEntry struct {
	Session *session.Session
	// Ready is closed once the room is joined or the open is abandoned.
	Ready chan struct{}
}

// Registry owns the sessions keyed by conference and routes inbound
// messages to them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConferenceID]*sessionEntry

	transport core.Transport
	agents    core.AgentFactory
	formats   core.FormatResolver
	cfg       session.Config
	policy    Policy
}

func NewRegistry(
	transport core.Transport,
	agents core.AgentFactory,
	formats core.FormatResolver,
	cfg session.Config,
	policy Policy,
) *Registry {
	if policy == nil {
		policy = SimplePolicy{CloseOnFailure: true}
	}
	return &Registry{
		sessions:  make(map[domain.ConferenceID]*sessionEntry),
		transport: transport,
		agents:    agents,
		formats:   formats,
		cfg:       cfg,
		policy:    policy,
	}
}

// Open creates the conference's session and joins its room.
func (r *Registry) Open(ctx context.Context, conf domain.ConferenceID) (*session.Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[conf]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, conf)
	}
	entry := &sessionEntry{Ready: make(chan struct{})}
	r.sessions[conf] = entry
	r.mu.Unlock()
	defer close(entry.Ready)

	agent, err := r.agents.NewAgent(conf)
	if err != nil {
		r.discard(conf, entry)
		return nil, fmt.Errorf("%w: %w", session.ErrResourceAllocation, err)
	}

	var sess *session.Session
	sess = session.New(conf, r.cfg, session.Deps{
		Transport: r.transport,
		Agent:     agent,
		Formats:   r.formats,
	}, session.Hooks{
		OnStateChange: func(conf domain.ConferenceID, from, to session.State) {
			log.Debug().Str("module", "app.registry").Str("conference", string(conf)).
				Str("from", string(from)).Str("to", string(to)).Msg("session state")
		},
		OnFailed: func(conf domain.ConferenceID, err error) {
			if r.policy.OnFailure(conf, err) == CloseSession {
				go r.closeSession(conf, sess)
			}
		},
		OnRemoteTerminate: func(conf domain.ConferenceID) {
			go r.closeSession(conf, sess)
		},
	})

	r.mu.Lock()
	entry.Session = sess
	r.mu.Unlock()

	if err := sess.Join(ctx); err != nil {
		r.discard(conf, entry)
		_ = sess.Leave(context.Background())
		log.Error().Str("module", "app.registry").Str("conference", string(conf)).Err(err).Msg("join failed")
		return nil, err
	}

	metrics.SessionsActive.Inc()
	log.Info().Str("module", "app.registry").Str("conference", string(conf)).Msg("opened session")
	return sess, nil
}

func (r *Registry) discard(conf domain.ConferenceID, entry *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[conf] == entry {
		delete(r.sessions, conf)
	}
}

// Close leaves the conference and forgets its session.
func (r *Registry) Close(ctx context.Context, conf domain.ConferenceID) error {
	entry, err := r.remove(conf, nil)
	if err != nil {
		return err
	}
	return r.leave(ctx, conf, entry)
}

// CloseSession closes conf only while it is still bound to sess. A
// conference reopened since sess was handed out is left alone.
func (r *Registry) CloseSession(ctx context.Context, conf domain.ConferenceID, sess *session.Session) error {
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, conf)
	}
	entry, err := r.remove(conf, sess)
	if err != nil {
		return err
	}
	return r.leave(ctx, conf, entry)
}

func (r *Registry) closeSession(conf domain.ConferenceID, sess *session.Session) {
	err := r.CloseSession(context.Background(), conf, sess)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Warn().Str("module", "app.registry").Str("conference", string(conf)).Err(err).Msg("close session")
	}
}

func (r *Registry) remove(conf domain.ConferenceID, want *session.Session) (*sessionEntry, error) {
	r.mu.RLock()
	entry, ok := r.sessions[conf]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, conf)
	}
	<-entry.Ready

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[conf] != entry || entry.Session == nil || (want != nil && entry.Session != want) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, conf)
	}
	delete(r.sessions, conf)
	return entry, nil
}

func (r *Registry) leave(ctx context.Context, conf domain.ConferenceID, entry *sessionEntry) error {
	metrics.SessionsActive.Dec()
	err := entry.Session.Leave(ctx)
	log.Info().Str("module", "app.registry").Str("conference", string(conf)).Msg("closed session")
	return err
}

// Dispatch routes msg to the session of its conference. A session whose
// room join is still in flight holds the message until joined. Messages
// for conferences without a session are dropped.
func (r *Registry) Dispatch(msg *domain.Message) error {
	conf := msg.ConferenceID()
	var sess *session.Session
	r.mu.RLock()
	if entry, ok := r.sessions[conf]; ok {
		sess = entry.Session
	}
	r.mu.RUnlock()
	if sess == nil {
		metrics.DispatchUnmatched.Inc()
		log.Debug().Str("module", "app.registry").Str("conference", string(conf)).
			Str("action", string(msg.Action)).Msg("no session for message")
		return nil
	}
	if err := sess.Deliver(msg); err != nil {
		log.Warn().Str("module", "app.registry").Str("conference", string(conf)).Err(err).Msg("deliver")
		return err
	}
	return nil
}

func (r *Registry) Get(conf domain.ConferenceID) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[conf]; ok && e.Session != nil {
		return e.Session, true
	}
	return nil, false
}

// List returns a snapshot of every session, ordered by conference.
func (r *Registry) List() []session.Info {
	r.mu.RLock()
	out := make([]session.Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Session != nil {
			out = append(out, e.Session.Info().Snapshot())
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b session.Info) int {
		return cmp.Compare(a.Conference, b.Conference)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every session.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	confs := make([]domain.ConferenceID, 0, len(r.sessions))
	for conf := range r.sessions {
		confs = append(confs, conf)
	}
	r.mu.RUnlock()

	var errs []error
	for _, conf := range confs {
		if err := r.Close(ctx, conf); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(confs)).Msg("shutdown")
	return errors.Join(errs...)
}
