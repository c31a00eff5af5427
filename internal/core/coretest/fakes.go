// Package coretest provides in-memory collaborators for exercising sessions
// without a network.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrInjected = errors.New("injected failure")

// Transport records every outbound message and room membership change.
type Transport struct {
	mu      sync.Mutex
	sent    []*domain.Message
	joined  map[domain.ConferenceID]bool
	Local   domain.ParticipantID
	JoinErr error
	// JoinGate, when set, holds JoinRoom until it is closed.
	JoinGate chan struct{}
	// SendErr fails Send for messages whose action matches; "" matches acks.
	SendErr map[domain.Action]error
}

func NewTransport() *Transport {
	return &Transport{
		joined: make(map[domain.ConferenceID]bool),
		Local:  "recorder@example.com/rec",
	}
}

func (t *Transport) JoinRoom(ctx context.Context, conf domain.ConferenceID, nickname string) (domain.ParticipantID, error) {
	if t.JoinGate != nil {
		select {
		case <-t.JoinGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.JoinErr != nil {
		return "", t.JoinErr
	}
	t.joined[conf] = true
	return t.Local, nil
}

func (t *Transport) LeaveRoom(_ context.Context, conf domain.ConferenceID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.joined, conf)
	return nil
}

func (t *Transport) Send(_ context.Context, msg *domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.SendErr[msg.Action]; ok {
		return err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *Transport) Joined(conf domain.ConferenceID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joined[conf]
}

func (t *Transport) Sent() []*domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*domain.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentWith filters Sent by action.
func (t *Transport) SentWith(action domain.Action) []*domain.Message {
	var out []*domain.Message
	for _, m := range t.Sent() {
		if m.Action == action && m.Type == domain.TypeSet {
			out = append(out, m)
		}
	}
	return out
}

// Agent allocates two components per kind with one host candidate each and
// lets the test decide the connectivity outcome.
type Agent struct {
	mu          sync.Mutex
	components  map[domain.MediaKind][]*core.Component
	remoteCreds map[domain.MediaKind][2]string
	outcome     chan core.Outcome
	nextPort    int

	Gen          int
	HarvestErr   map[domain.MediaKind]error
	EstablishErr error
	Allocations  int
	Closed       bool
	Started      bool
	EstablishCtx context.Context
}

func NewAgent() *Agent {
	return &Agent{
		components:  make(map[domain.MediaKind][]*core.Component),
		remoteCreds: make(map[domain.MediaKind][2]string),
		outcome:     make(chan core.Outcome, 1),
		nextPort:    7000,
	}
}

func (a *Agent) Harvest(_ context.Context, kind domain.MediaKind) ([]*core.Component, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.HarvestErr[kind]; err != nil {
		return nil, err
	}
	if comps, ok := a.components[kind]; ok {
		return comps, nil
	}
	var comps []*core.Component
	for _, id := range []uint16{core.ComponentRTP, core.ComponentRTCP} {
		local := domain.Candidate{
			Component:  id,
			Foundation: "1",
			Priority:   2130706431,
			IP:         "192.0.2.10",
			Port:       a.nextPort,
			Protocol:   "udp",
			Type:       domain.CandidateHost,
			ID:         fmt.Sprintf("%s-%d", kind, id),
		}
		a.nextPort++
		a.Allocations++
		comps = append(comps, core.NewComponent(kind, id, []domain.Candidate{local}))
	}
	a.components[kind] = comps
	return comps, nil
}

func (a *Agent) Component(kind domain.MediaKind, id uint16) (*core.Component, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.components[kind] {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (a *Agent) Components(kind domain.MediaKind) []*core.Component {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.components[kind]
}

func (a *Agent) LocalCredentials() (string, string) {
	return "lufr", "localpasswordlocalpassword"
}

func (a *Agent) SetRemoteCredentials(kind domain.MediaKind, ufrag, pwd string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remoteCreds[kind] = [2]string{ufrag, pwd}
	return nil
}

func (a *Agent) RemoteCredentials(kind domain.MediaKind) (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.remoteCreds[kind]
	return c[0], c[1]
}

func (a *Agent) Generation() int { return a.Gen }

func (a *Agent) Establish(ctx context.Context) (<-chan core.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.EstablishErr != nil {
		return nil, a.EstablishErr
	}
	a.Started = true
	a.EstablishCtx = ctx
	return a.outcome, nil
}

func (a *Agent) IsStarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Started
}

func (a *Agent) EstablishContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.EstablishCtx
}

// Complete delivers the terminal notification.
func (a *Agent) Complete(state core.ConnectivityState, err error) {
	a.outcome <- core.Outcome{State: state, Err: err}
}

func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Closed = true
	a.components = make(map[domain.MediaKind][]*core.Component)
	return nil
}

func (a *Agent) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Closed
}

// AgentFactory hands out Agents and remembers them per conference.
type AgentFactory struct {
	mu     sync.Mutex
	agents map[domain.ConferenceID]*Agent
	Err    error
}

func NewAgentFactory() *AgentFactory {
	return &AgentFactory{agents: make(map[domain.ConferenceID]*Agent)}
}

func (f *AgentFactory) NewAgent(conf domain.ConferenceID) (core.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	a := NewAgent()
	f.agents[conf] = a
	return a, nil
}

func (f *AgentFactory) Agent(conf domain.ConferenceID) *Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[conf]
}

// Formats resolves any non-empty name.
type Formats struct{}

func (Formats) Resolve(kind domain.MediaKind, name string, clockRate uint32, channels uint16) (domain.Format, error) {
	if name == "" || clockRate == 0 {
		return domain.Format{}, ErrInjected
	}
	return domain.Format{
		Kind: kind,
		Name: name,
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  string(kind) + "/" + strings.ToLower(name),
			ClockRate: clockRate,
			Channels:  channels,
		},
	}, nil
}

// Offer builds a session-initiate for conf with one payload type and one
// host candidate per kind. A nil payload slice for a kind leaves it empty.
func Offer(conf domain.ConferenceID, payloads map[domain.MediaKind][]domain.PayloadType) *domain.Message {
	msg := &domain.Message{
		ID:     "offer-1",
		Type:   domain.TypeSet,
		From:   domain.ParticipantID(string(conf) + "@conference.example.com/focus"),
		To:     "recorder@example.com/rec",
		Action: domain.ActionSessionInitiate,
		SID:    "sid-" + string(conf),
	}
	port := 10000
	for _, kind := range domain.MediaKinds {
		pts, ok := payloads[kind]
		if !ok {
			continue
		}
		msg.Contents = append(msg.Contents, domain.Content{
			Name:    string(kind),
			Creator: "initiator",
			Description: domain.Description{
				Media:        string(kind),
				SSRC:         uint32(port),
				PayloadTypes: pts,
			},
			Transport: domain.Transport{
				Ufrag: "rufr",
				Pwd:   "remotepasswordremotepwd",
				Candidates: []domain.Candidate{{
					Component: core.ComponentRTP, Foundation: "1", Priority: 2130706431,
					IP: "198.51.100.7", Port: port, Protocol: "udp", Type: domain.CandidateHost,
				}},
			},
		})
		port += 2
	}
	return msg
}

var (
	Opus = domain.PayloadType{ID: 111, Name: "opus", ClockRate: 48000, Channels: 2}
	PCMU = domain.PayloadType{ID: 0, Name: "PCMU", ClockRate: 8000}
	VP8  = domain.PayloadType{ID: 100, Name: "VP8", ClockRate: 90000}
	H264 = domain.PayloadType{ID: 107, Name: "H264", ClockRate: 90000}
)
