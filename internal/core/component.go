package core

import (
	"sync"

	"github.com/dkeye/Recorder/internal/domain"
)

// RemoteCandidate is a remote candidate accepted onto a component. Related
// points to the already applied base candidate, when one was found.
type RemoteCandidate struct {
	domain.Candidate
	Related *RemoteCandidate
}

// Component holds the local and the applied remote candidates of one
// (media kind, component id) pair. It is owned by the Agent.
type Component struct {
	Kind domain.MediaKind
	ID   uint16

	mu     sync.RWMutex
	local  []domain.Candidate
	remote []*RemoteCandidate
}

func NewComponent(kind domain.MediaKind, id uint16, local []domain.Candidate) *Component {
	return &Component{Kind: kind, ID: id, local: local}
}

func (c *Component) Local() []domain.Candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Candidate, len(c.local))
	copy(out, c.local)
	return out
}

func (c *Component) SetLocal(local []domain.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = local
}

func (c *Component) AddRemote(rc *RemoteCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = append(c.remote, rc)
}

// FindRemote returns the applied remote candidate with exactly ip:port, or nil.
func (c *Component) FindRemote(ip string, port int) *RemoteCandidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rc := range c.remote {
		if rc.IP == ip && rc.Port == port {
			return rc
		}
	}
	return nil
}

func (c *Component) Remote() []*RemoteCandidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RemoteCandidate, len(c.remote))
	copy(out, c.remote)
	return out
}
