package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/blockedby/chanscope/internal/mapper"
	"github.com/blockedby/chanscope/internal/telegram"
)

type messageKey struct {
	chatID    int64
	messageID int64
}

// Correlator matches transcription pushes to outstanding requests.
type Correlator struct {
	mu      sync.Mutex
	pending map[messageKey]*Pending
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[messageKey]*Pending)}
}

// Pending is one outstanding transcription wait.
type Pending struct {
	c   *Correlator
	key messageKey
	ch  chan string
}

// Register starts waiting for a transcript of the message. It must happen
// before the request is issued, since the push can arrive at any time.
// A later Register for the same message takes over the slot.
func (c *Correlator) Register(chatID, messageID int64) *Pending {
	p := &Pending{c: c, key: messageKey{chatID, messageID}, ch: make(chan string, 1)}
	c.mu.Lock()
	c.pending[p.key] = p
	c.mu.Unlock()
	return p
}

// Release removes p if it still owns its slot.
func (p *Pending) Release() {
	p.c.mu.Lock()
	if p.c.pending[p.key] == p {
		delete(p.c.pending, p.key)
	}
	p.c.mu.Unlock()
}

// Resolve delivers a finished transcript carried by u. It reports whether a
// waiter took it.
func (c *Correlator) Resolve(u telegram.Update) bool {
	mc, ok := u.(*telegram.UpdateMessageContent)
	if !ok {
		return false
	}
	text, ok := mapper.Transcript(mc.Content)
	if !ok {
		return false
	}

	key := messageKey{mc.ChatID, mc.MessageID}
	c.mu.Lock()
	p := c.pending[key]
	if p != nil {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case p.ch <- text:
	default:
	}
	return true
}

// Len returns the number of outstanding waits.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PollFunc re-reads the message and returns its transcript when ready.
type PollFunc func(ctx context.Context) (string, bool)

// Wait blocks until a push arrives, poll succeeds or timeout passes,
// whichever is first. The poll is cancelled when Wait returns and the slot
// is released.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration, poll PollFunc) (string, bool) {
	defer p.Release()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	polled := make(chan string, 1)
	if poll != nil {
		go func() {
			if text, ok := poll(ctx); ok {
				polled <- text
			}
		}()
	}

	select {
	case text := <-p.ch:
		return text, true
	case text := <-polled:
		return text, true
	case <-ctx.Done():
		// a push may have landed together with the deadline
		select {
		case text := <-p.ch:
			return text, true
		default:
			return "", false
		}
	}
}
