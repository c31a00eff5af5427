// Package session drives the negotiation of one conference: it answers the
// focus's session-initiate, hands transport to the connectivity agent and
// tracks the outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Recorder/internal/app/metrics"
	"github.com/dkeye/Recorder/internal/app/negotiation"
	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultInboxSize = 16

type Config struct {
	Nickname         string
	ConferenceDomain string
	InboxSize        int
	// ConnectTimeout bounds the connectivity wait. Zero means no bound.
	ConnectTimeout time.Duration
}

type Deps struct {
	Transport core.Transport
	Agent     core.Agent
	Formats   core.FormatResolver
}

// Hooks report session events upward. They run on the session's goroutines
// and must not block.
type Hooks struct {
	OnStateChange     func(conf domain.ConferenceID, from, to State)
	OnFailed          func(conf domain.ConferenceID, err error)
	OnRemoteTerminate func(conf domain.ConferenceID)
}

type Session struct {
	conf   domain.ConferenceID
	cfg    Config
	hooks  Hooks
	logger zerolog.Logger

	transport  core.Transport
	agent      core.Agent
	matcher    *negotiation.CandidateMatcher
	negotiator *negotiation.MediaNegotiator

	info    *SessionInfo
	machine *fsm.FSM

	ctx    context.Context
	cancel context.CancelFunc

	// handleMu serializes message handling; mu guards waitCancel.
	handleMu   sync.Mutex
	mu         sync.Mutex
	waitCancel context.CancelFunc

	// ready is closed by Join; the worker holds queued messages until then.
	ready     chan struct{}
	inbox     chan *domain.Message
	joined    atomic.Bool
	closeOnce sync.Once
}

func New(conf domain.ConferenceID, cfg Config, deps Deps, hooks Hooks) *Session {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conf:  conf,
		cfg:   cfg,
		hooks: hooks,
		logger: log.With().
			Str("module", "app.session").
			Str("conference", string(conf)).
			Logger(),
		transport:  deps.Transport,
		agent:      deps.Agent,
		matcher:    negotiation.NewCandidateMatcher(),
		negotiator: negotiation.NewMediaNegotiator(deps.Formats),
		info:       newSessionInfo(conf, conf.RoomJID(cfg.ConferenceDomain)),
		ctx:        ctx,
		cancel:     cancel,
		ready:      make(chan struct{}),
		inbox:      make(chan *domain.Message, cfg.InboxSize),
	}
	s.machine = newMachine(s.onEnter)
	go s.run()
	return s
}

func (s *Session) Conference() domain.ConferenceID { return s.conf }

func (s *Session) Info() *SessionInfo { return s.info }

func (s *Session) State() State { return State(s.machine.Current()) }

func (s *Session) onEnter(from, to State) {
	s.info.setState(to)
	metrics.SessionTransitions.WithLabelValues(string(to)).Inc()
	s.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("state changed")
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(s.conf, from, to)
	}
}

// Join enters the conference room: INIT -> JOINED.
func (s *Session) Join(ctx context.Context) error {
	local, err := s.transport.JoinRoom(ctx, s.conf, s.cfg.Nickname)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrJoinFailed, s.conf, err)
	}
	s.joined.Store(true)
	s.info.setLocalID(local)
	if err := s.machine.Event(ctx, evJoin); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	close(s.ready)
	return nil
}

// Deliver queues msg for in-order handling on the session's worker.
func (s *Session) Deliver(msg *domain.Message) error {
	select {
	case <-s.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

func (s *Session) run() {
	select {
	case <-s.ctx.Done():
		return
	case <-s.ready:
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			if err := s.Handle(s.ctx, msg); err != nil {
				s.logger.Error().Err(err).Str("action", string(msg.Action)).Msg("handle message")
			}
		}
	}
}

// Handle processes one inbound message. Calls are serialized.
func (s *Session) Handle(ctx context.Context, msg *domain.Message) error {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	if s.ctx.Err() != nil {
		return ErrClosed
	}
	if msg.Type != domain.TypeSet {
		s.logger.Debug().Str("type", string(msg.Type)).Str("id", msg.ID).Msg("ignoring non-set message")
		return nil
	}

	switch msg.Action {
	case domain.ActionSessionInitiate:
		return s.initiate(ctx, msg)
	case domain.ActionSessionTerminate:
		s.ack(ctx, msg)
		s.logger.Info().Str("sid", msg.SID).Msg("remote terminated session")
		if s.hooks.OnRemoteTerminate != nil {
			s.hooks.OnRemoteTerminate(s.conf)
		}
		return nil
	default:
		s.ack(ctx, msg)
		s.logger.Debug().Str("action", string(msg.Action)).Msg("unhandled action")
		return nil
	}
}

func (s *Session) initiate(ctx context.Context, msg *domain.Message) error {
	switch st := s.State(); st {
	case StateJoined:
	case StateInit:
		return fmt.Errorf("%w: session-initiate before join", ErrInvalidState)
	default:
		s.logger.Warn().Str("state", string(st)).Str("sid", msg.SID).Msg("protocol violation: re-entrant session-initiate")
		s.reject(ctx, msg)
		return fmt.Errorf("%w: session-initiate in state %s", ErrProtocolViolation, st)
	}
	if err := s.machine.Event(ctx, evInitiate); err != nil {
		if isRejected(err) {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
		return err
	}
	s.info.setNegotiation(msg.To, msg.From, msg.SID)

	// (a) acknowledge
	s.ack(ctx, msg)

	kinds := s.offeredKinds(msg)
	if len(kinds) == 0 {
		return s.fail(ctx, fmt.Errorf("%w: no media contents", ErrMalformedOffer))
	}

	// (b) harvest local candidates
	for _, kind := range kinds {
		if _, err := s.agent.Harvest(ctx, kind); err != nil {
			return s.fail(ctx, &NegotiationError{Kind: kind, Err: fmt.Errorf("%w: %w", ErrResourceAllocation, err)})
		}
	}

	// (c) apply remote candidates
	generation := s.agent.Generation()
	for _, kind := range kinds {
		content, _ := msg.ContentFor(kind)
		if t := content.Transport; t.Ufrag != "" || t.Pwd != "" {
			if err := s.agent.SetRemoteCredentials(kind, t.Ufrag, t.Pwd); err != nil {
				return s.fail(ctx, &NegotiationError{Kind: kind, Err: fmt.Errorf("%w: %w", ErrMalformedOffer, err)})
			}
		}
		stats := s.matcher.Apply(s.agent, kind, content.Transport.Candidates, generation)
		s.logger.Debug().
			Str("kind", string(kind)).
			Int("applied", stats.Applied).
			Int("stale", stats.Stale).
			Int("unresolved", stats.Unresolved).
			Msg("remote candidates applied")
	}

	// (d) negotiate media parameters
	negotiated := make([]*negotiation.Negotiated, 0, len(kinds))
	for _, kind := range kinds {
		content, _ := msg.ContentFor(kind)
		res, err := s.negotiator.Negotiate(kind, content, msg.From)
		if err != nil {
			return s.fail(ctx, &NegotiationError{Kind: kind, Err: fmt.Errorf("%w: %w", ErrMalformedOffer, err)})
		}
		s.record(res)
		negotiated = append(negotiated, res)
	}

	// (e) accept
	accept := s.buildAccept(msg, negotiated)
	if err := s.transport.Send(ctx, accept); err != nil {
		metrics.SendFailures.WithLabelValues("accept").Inc()
		return s.fail(ctx, fmt.Errorf("%w: session-accept: %w", ErrSendFailed, err))
	}
	s.logger.Info().Str("sid", msg.SID).Int("contents", len(accept.Contents)).Msg("session-accept sent")

	// (f) connectivity
	return s.awaitConnectivity(ctx)
}

// offeredKinds lists the media kinds present in msg. Missing kinds are
// not negotiated.
func (s *Session) offeredKinds(msg *domain.Message) []domain.MediaKind {
	var kinds []domain.MediaKind
	for _, kind := range domain.MediaKinds {
		if _, ok := msg.ContentFor(kind); ok {
			kinds = append(kinds, kind)
			continue
		}
		s.logger.Warn().Str("kind", string(kind)).Str("sid", msg.SID).Msg("media kind not offered")
	}
	return kinds
}

func (s *Session) record(res *negotiation.Negotiated) {
	s.info.setFormat(res.Kind, res.Format, res.PayloadType)
	if res.Fingerprint != nil {
		s.info.setRemoteFingerprint(res.Kind, res.Fingerprint)
	}
	for _, src := range res.Sources {
		if !s.info.addRemoteSSRC(res.Kind, src.Participant, src.SSRC) {
			s.logger.Debug().Str("kind", string(res.Kind)).Str("participant", string(src.Participant)).Msg("ssrc already bound")
		}
	}
}

func (s *Session) buildAccept(offer *domain.Message, negotiated []*negotiation.Negotiated) *domain.Message {
	ufrag, pwd := s.agent.LocalCredentials()
	generation := s.agent.Generation()

	contents := make([]domain.Content, 0, len(negotiated))
	for _, n := range negotiated {
		var cands []domain.Candidate
		for _, comp := range s.agent.Components(n.Kind) {
			for _, c := range comp.Local() {
				c.Component = comp.ID
				c.Generation = generation
				cands = append(cands, c)
			}
		}
		content := domain.Content{
			Name: string(n.Kind),
			Description: domain.Description{
				Media: string(n.Kind),
				PayloadTypes: []domain.PayloadType{{
					ID:         n.PayloadType.ID,
					Name:       n.Format.Name,
					ClockRate:  n.Format.ClockRate,
					Channels:   n.Format.Channels,
					Parameters: n.PayloadType.Parameters,
				}},
			},
			Transport: domain.Transport{Ufrag: ufrag, Pwd: pwd, Candidates: cands},
		}
		if oc, ok := offer.ContentFor(n.Kind); ok {
			content.Name = oc.Name
			content.Creator = oc.Creator
		}
		contents = append(contents, content)
	}

	return &domain.Message{
		ID:         uuid.NewString(),
		Type:       domain.TypeSet,
		From:       offer.To,
		To:         offer.From,
		Action:     domain.ActionSessionAccept,
		SID:        offer.SID,
		Conference: s.conf,
		Contents:   contents,
	}
}

func (s *Session) awaitConnectivity(ctx context.Context) error {
	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if s.cfg.ConnectTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	} else {
		waitCtx, cancel = context.WithCancel(s.ctx)
	}

	outcomes, err := s.agent.Establish(waitCtx)
	if err != nil {
		cancel()
		return s.fail(ctx, fmt.Errorf("%w: %w", ErrConnectivity, err))
	}

	s.mu.Lock()
	s.waitCancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		// Transitions below must not inherit the session context, which Leave cancels.
		bg := context.Background()
		select {
		case o, ok := <-outcomes:
			switch {
			case !ok:
				_ = s.fail(bg, fmt.Errorf("%w: notification channel closed", ErrConnectivity))
			case o.State == core.ConnectivityCompleted:
				if err := s.machine.Event(bg, evConnect); err != nil && !isRejected(err) {
					s.logger.Error().Err(err).Msg("connect transition")
				}
			default:
				_ = s.fail(bg, fmt.Errorf("%w: %w", ErrConnectivity, o.Err))
			}
		case <-waitCtx.Done():
			if s.ctx.Err() != nil {
				return
			}
			_ = s.fail(bg, fmt.Errorf("%w: %w", ErrConnectivity, waitCtx.Err()))
		}
	}()
	return nil
}

// fail moves the session to FAILED and returns err for the caller.
func (s *Session) fail(ctx context.Context, err error) error {
	if ferr := s.machine.Event(ctx, evFail); ferr != nil {
		if !isRejected(ferr) {
			s.logger.Error().Err(ferr).Msg("fail transition")
		}
		return err
	}
	metrics.NegotiationFailures.WithLabelValues(failureReason(err)).Inc()
	s.logger.Error().Err(err).Msg("session failed")
	if s.hooks.OnFailed != nil {
		s.hooks.OnFailed(s.conf, err)
	}
	return err
}

// ack replies to msg. Failures are logged and counted but do not stop
// negotiation.
func (s *Session) ack(ctx context.Context, msg *domain.Message) {
	if err := s.transport.Send(ctx, msg.Result()); err != nil {
		metrics.SendFailures.WithLabelValues("ack").Inc()
		s.logger.Warn().Err(err).Str("id", msg.ID).Msg("ack not sent")
	}
}

func (s *Session) reject(ctx context.Context, msg *domain.Message) {
	reply := msg.Result()
	reply.Type = domain.TypeError
	if err := s.transport.Send(ctx, reply); err != nil {
		metrics.SendFailures.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("id", msg.ID).Msg("error reply not sent")
	}
}

// Leave cancels any connectivity wait, releases the agent's components and
// leaves the room. Safe to call in any state and more than once.
func (s *Session) Leave(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.waitCancel != nil {
			s.waitCancel()
		}
		s.mu.Unlock()

		if err := s.machine.Event(ctx, evTerminate); err != nil && !isRejected(err) {
			errs = append(errs, err)
		}
		if s.agent != nil {
			if err := s.agent.Close(); err != nil {
				errs = append(errs, fmt.Errorf("release components: %w", err))
			}
		}
		if s.joined.Load() {
			if err := s.transport.LeaveRoom(ctx, s.conf); err != nil {
				errs = append(errs, fmt.Errorf("leave room: %w", err))
			}
		}
		s.logger.Info().Msg("left conference")
	})
	return errors.Join(errs...)
}
