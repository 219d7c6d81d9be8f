package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
	"github.com/nextlevelbuilder/opsclaw/internal/st2"
)

// ErrGateFull is returned when the pending-confirmation table is at capacity.
var ErrGateFull = errors.New("too many commands awaiting two-factor confirmation")

// Pending is a gated execution waiting for confirmation.
type Pending struct {
	Token   string
	Alias   *aliases.Definition
	Request st2.AliasExecutionRequest
	Chat    ChatContext
	Created time.Time

	timer *time.Timer
}

// Gate holds pending confirmations keyed by token. Entries leave the table
// exactly once: through Take on confirmation or through expiry.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*Pending
	ttl      time.Duration
	max      int
	onExpire func(*Pending)
	closed   bool
}

// NewGate creates a gate. ttl <= 0 disables expiry; max <= 0 disables the bound.
func NewGate(ttl time.Duration, max int) *Gate {
	return &Gate{
		pending: make(map[string]*Pending),
		ttl:     ttl,
		max:     max,
	}
}

// OnExpire registers the callback run, outside the lock, for expired entries.
func (g *Gate) OnExpire(fn func(*Pending)) {
	g.mu.Lock()
	g.onExpire = fn
	g.mu.Unlock()
}

// Open registers p under p.Token.
func (g *Gate) Open(p *Pending) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return errors.New("two-factor gate closed")
	}
	if g.max > 0 && len(g.pending) >= g.max {
		return ErrGateFull
	}
	if p.Created.IsZero() {
		p.Created = time.Now()
	}
	g.pending[p.Token] = p

	if g.ttl > 0 {
		token := p.Token
		p.timer = time.AfterFunc(g.ttl, func() { g.expire(token) })
	}
	slog.Debug("two-factor pending", "token", p.Token, "alias", p.Request.Name, "pending", len(g.pending))
	return nil
}

// Take removes and returns the entry for token. Unknown or already handled
// tokens return false.
func (g *Gate) Take(token string) (*Pending, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[token]
	if !ok {
		return nil, false
	}
	delete(g.pending, token)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p, true
}

// Len returns the number of pending confirmations.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Close drops all pending entries without running the expiry callback.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for token, p := range g.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(g.pending, token)
	}
	g.closed = true
}

func (g *Gate) expire(token string) {
	g.mu.Lock()
	p, ok := g.pending[token]
	if ok {
		delete(g.pending, token)
	}
	fn := g.onExpire
	g.mu.Unlock()

	if !ok {
		return
	}
	slog.Info("two-factor confirmation expired", "token", token, "alias", p.Request.Name, "age", time.Since(p.Created))
	if fn != nil {
		fn(p)
	}
}
