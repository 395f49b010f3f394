package refresh

import (
	"sync"

	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/telegram"
)

// Buffer collects push updates received while one entity is processed.
type Buffer struct {
	name    string
	mu      sync.Mutex
	updates []telegram.Update
}

// Name is the target name the buffer belongs to.
func (b *Buffer) Name() string { return b.name }

func (b *Buffer) add(u telegram.Update) {
	b.mu.Lock()
	b.updates = append(b.updates, u)
	b.mu.Unlock()
}

// Drain returns buffered updates in arrival order and empties the buffer.
func (b *Buffer) Drain() []telegram.Update {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.updates
	b.updates = nil
	return out
}

// Router is the single listener of the connection's update stream. Updates
// first go to the transcription correlator, then to the active buffer.
type Router struct {
	mu         sync.Mutex
	active     *Buffer
	correlator *Correlator
	log        *logger.Logger
}

// NewRouter creates a router. correlator may be nil.
func NewRouter(correlator *Correlator, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{correlator: correlator, log: log}
}

// Begin makes a fresh buffer for name the active one.
func (r *Router) Begin(name string) *Buffer {
	b := &Buffer{name: name}
	r.mu.Lock()
	r.active = b
	r.mu.Unlock()
	return b
}

// End deactivates b and returns what it collected. Calling End twice is safe.
func (r *Router) End(b *Buffer) []telegram.Update {
	r.mu.Lock()
	if r.active == b {
		r.active = nil
	}
	r.mu.Unlock()
	return b.Drain()
}

// Dispatch routes one update. It is safe for concurrent use.
func (r *Router) Dispatch(u telegram.Update) {
	if u == nil {
		return
	}
	if r.correlator != nil {
		r.correlator.Resolve(u)
	}

	r.mu.Lock()
	b := r.active
	r.mu.Unlock()

	if b == nil {
		r.log.Debug().Str("type", u.UpdateType()).Msg("refresh: update outside entity")
		return
	}
	b.add(u)
}
