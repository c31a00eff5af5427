// Package recording answers recording control requests by opening and
// closing conference sessions.
package recording

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/dkeye/Recorder/internal/app/session"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownRecording = errors.New("unknown recording")
	ErrRateLimited      = errors.New("too many start requests")
)

// RateLimitError rejects a start and says when the conference may retry.
type RateLimitError struct {
	Conference domain.ConferenceID
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry in %s", ErrRateLimited, e.Conference, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// DefaultRetention is how long an aborted recording stays queryable.
const DefaultRetention = 10 * time.Minute

// Sessions is the subset of the session registry the controller drives.
type Sessions interface {
	Open(ctx context.Context, conf domain.ConferenceID) (*session.Session, error)
	CloseSession(ctx context.Context, conf domain.ConferenceID, sess *session.Session) error
	Get(conf domain.ConferenceID) (*session.Session, bool)
}

type Recording struct {
	RID        string              `json:"rid"`
	Conference domain.ConferenceID `json:"conference"`
	MucJID     string              `json:"mucjid"`
	Output     string              `json:"dst"`
	StartedAt  time.Time           `json:"started_at"`
	EndedAt    time.Time           `json:"ended_at,omitzero"`
	Status     Status              `json:"status"`

	// session is the one this recording opened; a later session of the
	// same conference belongs to another recording.
	session *session.Session
}

type Controller struct {
	Sessions  Sessions
	Limiter   *RateLimiter
	OutputDir string
	Retention time.Duration

	now        func() time.Time
	mu         sync.Mutex
	recordings map[string]*Recording
}

func NewController(sessions Sessions, limiter *RateLimiter, outputDir string) *Controller {
	return &Controller{
		Sessions:   sessions,
		Limiter:    limiter,
		OutputDir:  outputDir,
		Retention:  DefaultRetention,
		now:        time.Now,
		recordings: make(map[string]*Recording),
	}
}

// Handle executes req and returns the reply attributes.
func (c *Controller) Handle(ctx context.Context, req Control) (Control, error) {
	action, err := req.Action()
	if err != nil {
		return nil, err
	}
	c.sweep()
	switch action {
	case ActionStart:
		return c.start(ctx, req)
	case ActionStop:
		return c.stop(ctx, req)
	default:
		return c.info(req)
	}
}

func (c *Controller) start(ctx context.Context, req Control) (Control, error) {
	mucjid, err := req.Require(AttrMucJID)
	if err != nil {
		return nil, err
	}
	conf, err := conferenceOf(mucjid)
	if err != nil {
		return nil, err
	}
	if wait, ok := c.Limiter.Reserve(conf); !ok {
		log.Warn().Str("module", "recording").Str("conference", string(conf)).
			Dur("retry_after", wait).Msg("start rate limited")
		return nil, &RateLimitError{Conference: conf, RetryAfter: wait}
	}

	sess, err := c.Sessions.Open(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", conf, err)
	}

	rec := &Recording{
		RID:        uuid.NewString(),
		Conference: conf,
		MucJID:     mucjid,
		StartedAt:  c.now(),
		session:    sess,
	}
	rec.Output = path.Join(c.OutputDir, string(conf)+"-"+rec.RID)
	rec.Status = statusOf(sess.State())

	c.mu.Lock()
	c.recordings[rec.RID] = rec
	c.mu.Unlock()

	log.Info().Str("module", "recording").Str("conference", string(conf)).Str("rid", rec.RID).Msg("recording started")
	return NewControl(ActionStart).
		Set(AttrMucJID, mucjid).
		Set(AttrRID, rec.RID).
		Set(AttrStatus, rec.Status.String()), nil
}

func (c *Controller) stop(ctx context.Context, req Control) (Control, error) {
	rec, err := c.lookup(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	delete(c.recordings, rec.RID)
	c.mu.Unlock()

	if err := c.Sessions.CloseSession(ctx, rec.Conference, rec.session); err != nil {
		// The session may have been closed underneath the recording.
		log.Warn().Str("module", "recording").Str("rid", rec.RID).Err(err).Msg("close session")
	}
	log.Info().Str("module", "recording").Str("conference", string(rec.Conference)).Str("rid", rec.RID).Msg("recording stopped")
	return NewControl(ActionStop).
		Set(AttrRID, rec.RID).
		Set(AttrStatus, StatusStopped.String()), nil
}

func (c *Controller) info(req Control) (Control, error) {
	rec, err := c.lookup(req)
	if err != nil {
		return nil, err
	}
	return NewControl(ActionInfo).
		Set(AttrRID, rec.RID).
		Set(AttrMucJID, rec.MucJID).
		Set(AttrStatus, c.status(rec).String()).
		Set(AttrOutput, rec.Output), nil
}

func (c *Controller) lookup(req Control) (*Recording, error) {
	rid, err := req.Require(AttrRID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.recordings[rid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecording, rid)
	}
	return rec, nil
}

// status reports rec's current status. A session that is gone, or that
// was replaced by a later one for the conference, was closed underneath
// the recording.
func (c *Controller) status(rec *Recording) Status {
	sess, ok := c.Sessions.Get(rec.Conference)
	if !ok || sess != rec.session {
		return StatusAborted
	}
	return statusOf(sess.State())
}

// sweep stamps newly aborted recordings and forgets those aborted longer
// than Retention ago, along with idle rate limiter entries.
func (c *Controller) sweep() {
	c.Limiter.Prune()
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for rid, rec := range c.recordings {
		if c.status(rec) != StatusAborted {
			continue
		}
		if rec.EndedAt.IsZero() {
			rec.EndedAt = now
			continue
		}
		if now.Sub(rec.EndedAt) >= c.Retention {
			delete(c.recordings, rid)
			log.Debug().Str("module", "recording").Str("rid", rid).Msg("aborted recording expired")
		}
	}
}

// List returns the known recordings with their current status.
func (c *Controller) List() []Recording {
	c.sweep()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Recording, 0, len(c.recordings))
	for _, rec := range c.recordings {
		r := *rec
		r.Status = c.status(rec)
		out = append(out, r)
	}
	return out
}

func statusOf(s session.State) Status {
	switch s {
	case session.StateConnected:
		return StatusStarted
	case session.StateFailed, session.StateTerminated:
		return StatusAborted
	}
	return StatusInitiating
}

// conferenceOf accepts either a bare conference id or a room address.
func conferenceOf(mucjid string) (domain.ConferenceID, error) {
	id := domain.ParticipantID(mucjid)
	if node := id.Node(); node != "" {
		return domain.NewConferenceID(node)
	}
	return domain.NewConferenceID(mucjid)
}
