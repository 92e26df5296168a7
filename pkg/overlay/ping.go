package overlay

import (
	"context"
	"time"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

const pingFamily = "ping"

// PingRequestCache is the request-cache entry for an outstanding ping
// round: everyone it was sent to, and everyone who has replied so far
// (spec.md §3).
type PingRequestCache struct {
	ID        uint16
	Requested map[framework.MID]framework.WalkCandidate
	Received  map[framework.MID]struct{}
}

// Liveness runs the periodic ping/pong subsystem that keeps confirmed
// buddies fresh and evicts silent ones (spec.md §4.E).
type Liveness struct {
	cfg      Config
	registry *Registry
	cache    *RequestCache
	dispersy framework.Dispersy
	clock    func() time.Time
}

// NewLiveness builds a Liveness task. Call Run (typically via an
// errgroup, see community.go) to begin the periodic tick; it is safe to
// call Run at most once per Liveness instance.
func NewLiveness(cfg Config, registry *Registry, cache *RequestCache, dispersy framework.Dispersy) *Liveness {
	return &Liveness{
		cfg:      cfg,
		registry: registry,
		cache:    cache,
		dispersy: dispersy,
		clock:    time.Now,
	}
}

// Run drives the PING_INTERVAL ticker until ctx is canceled.
// Registry.SetPingTaskStarter should arrange for this to be scheduled the
// first time a confirmed buddy is added, per spec.md §4.C.
func (l *Liveness) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.tick()
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Liveness) tick() {
	candidates := l.registry.YieldTasteBuddies(nil)
	var due []*ActualTasteBuddy
	now := l.clock()
	for _, b := range candidates {
		if b.TimeRemaining(now, l.cfg.PingTimeout) < l.cfg.PingInterval {
			due = append(due, b)
		}
	}
	if len(due) == 0 {
		return
	}

	entry := &PingRequestCache{
		Requested: make(map[framework.MID]framework.WalkCandidate, len(due)),
		Received:  make(map[framework.MID]struct{}),
	}
	var targets []framework.WalkCandidate
	for _, b := range due {
		entry.Requested[b.MID] = b.Candidate
		targets = append(targets, b.Candidate)
	}

	id, err := l.cache.Add(pingFamily, l.cfg.PingCacheTimeout, entry, l.onTimeout)
	if err != nil {
		return
	}
	entry.ID = id

	msg := framework.Message{Name: "ping", Payload: PingPayload{ID: id}}
	msgs := make([]framework.Message, len(targets))
	for i := range targets {
		msgs[i] = msg
	}
	l.dispersy.Send(targets, msgs)
}

func (l *Liveness) onTimeout(_ uint16, data any) {
	entry := data.(*PingRequestCache)
	for mid := range entry.Requested {
		if _, ok := entry.Received[mid]; !ok {
			l.registry.Remove(mid)
		}
	}
}

// PingPayload is the wire payload of both ping and pong (spec.md §6).
type PingPayload struct {
	ID uint16
}

// OnPing replies to an inbound ping with a pong carrying the same id,
// and refreshes the sender's liveness timestamp if it's a known buddy
// (spec.md §4.E).
func (l *Liveness) OnPing(sender framework.WalkCandidate, senderMID framework.MID, ping PingPayload) {
	l.registry.RefreshTimestamp(senderMID, l.clock())
	pong := framework.Message{Name: "pong", Payload: PingPayload{ID: ping.ID}}
	l.dispersy.Send([]framework.WalkCandidate{sender}, []framework.Message{pong})
}

// OnPong processes an inbound pong: drops it if the id is unknown or the
// sender wasn't part of that round's requested set; otherwise refreshes
// the buddy and, once every requested candidate has replied, pops the
// cache entry (spec.md §4.E).
func (l *Liveness) OnPong(senderMID framework.MID, pong PingPayload) error {
	raw, ok := l.cache.Get(pingFamily, pong.ID)
	if !ok {
		return ErrUnknownCorrelationID
	}
	entry := raw.(*PingRequestCache)

	if _, ok := entry.Requested[senderMID]; !ok {
		return ErrWrongPongSender
	}

	entry.Received[senderMID] = struct{}{}
	l.registry.RefreshTimestamp(senderMID, l.clock())

	if len(entry.Received) == len(entry.Requested) {
		l.cache.Pop(pingFamily, pong.ID)
	}
	return nil
}
