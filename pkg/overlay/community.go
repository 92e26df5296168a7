package overlay

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// DiscoveryCommunity wires the bootstrap resolver, request-cache, taste
// buddy registry, similarity protocol, ping liveness and introduction
// steering into one overlay (spec.md §1-§2). Intercept, the similarity
// handlers, pong handling and steering run on a single internal goroutine
// (the actor loop in Run). Two kinds of work run outside that loop: the
// Liveness ticker selects and pings due buddies on its own goroutine, and
// request-cache timeout callbacks (the plain introduction request after a
// similarity timeout, buddy eviction after a ping timeout) run on timer
// goroutines. Both reach the Registry and RequestCache through those
// components' own mutexes, the way pkg/p2pnet.PeerManager guards its
// slices.
type DiscoveryCommunity struct {
	cid      framework.CID
	cfg      Config
	dispersy framework.Dispersy
	logger   *slog.Logger
	metrics  *Metrics

	localMID  framework.MID
	localSelf framework.WalkCandidate

	registry  *Registry
	cache     *RequestCache
	protocol  *Protocol
	liveness  *Liveness
	steering  *Steering
	bootstrap *Bootstrap

	cmds chan func()
	stop chan struct{}

	// group/groupCtx let startLiveness schedule Liveness.Run onto the
	// same errgroup Run supervises, once Run has actually started.
	pingOnce sync.Once
	group    *errgroup.Group
	groupCtx context.Context
}

// NewDiscoveryCommunity builds a DiscoveryCommunity for cid. localMID
// identifies the local member; localSelf, once set via SetLocalCandidate,
// supplies the LAN/WAN/connection-type fields of outgoing similarity
// requests.
func NewDiscoveryCommunity(cid framework.CID, cfg Config, dispersy framework.Dispersy, localMID framework.MID, logger *slog.Logger, metrics *Metrics) *DiscoveryCommunity {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	dc := &DiscoveryCommunity{
		cid:      cid,
		cfg:      cfg,
		dispersy: dispersy,
		logger:   logger.With("cid", cid.String()),
		metrics:  metrics,
		localMID: localMID,
		cmds:     make(chan func()),
		stop:     make(chan struct{}),
	}

	dc.registry = NewRegistry(cfg, localMID, dc.localPreferenceSet)
	dc.cache = NewRequestCache()
	dc.protocol = NewProtocol(cfg, dc.registry, dc.cache, dispersy, localMID, dc.localPreferenceList)
	dc.liveness = NewLiveness(cfg, dc.registry, dc.cache, dispersy)
	dc.steering = NewSteering(dc.registry)
	dc.bootstrap = NewBootstrap(dispersy, dc.logger)

	dc.protocol.IsBootstrapSeed = dc.bootstrap.IsSeed
	dc.protocol.LocalAddress = dc.localAddress
	dc.protocol.IssuePlainIntroductionRequest = dc.emitPlainIntroductionRequest
	dc.protocol.IssueSteeredIntroductionRequest = dc.emitSteeredIntroductionRequest
	dc.registry.SetCrossWire(dc.crossWire)
	dc.registry.SetPingTaskStarter(dc.startLiveness)
	dc.steering.CandidateByMID = dispersy.CandidateByMID

	return dc
}

// startLiveness schedules the Liveness ticker onto the errgroup Run set
// up, exactly once, the first time a confirmed buddy appears (spec.md
// §4.C: "if the periodic create_ping_requests task is not yet
// scheduled, start it").
func (dc *DiscoveryCommunity) startLiveness() {
	dc.pingOnce.Do(func() {
		if dc.group == nil {
			return
		}
		dc.group.Go(func() error { return dc.liveness.Run(dc.groupCtx) })
	})
}

// CID implements framework.Community.
func (dc *DiscoveryCommunity) CID() framework.CID { return dc.cid }

// EnableCandidateWalker implements framework.Community. DiscoveryCommunity
// always walks.
func (dc *DiscoveryCommunity) EnableCandidateWalker() bool { return true }

// SetLocalCandidate records the local node's own candidate view, used to
// populate outgoing similarity-request addresses.
func (dc *DiscoveryCommunity) SetLocalCandidate(self framework.WalkCandidate) {
	dc.do(func() { dc.localSelf = self })
}

// Run starts the actor loop, supervised together with the liveness
// ticker by an errgroup so either one's failure or ctx's cancellation
// stops both. Blocks until ctx is canceled. Callers typically run it in
// its own goroutine.
func (dc *DiscoveryCommunity) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	dc.group = g
	dc.groupCtx = gctx

	g.Go(func() error {
		for {
			select {
			case cmd := <-dc.cmds:
				cmd()
			case <-gctx.Done():
				close(dc.stop)
				return nil
			}
		}
	})

	return g.Wait()
}

// do submits f to the actor loop and blocks until it has run, or the
// loop has already stopped.
func (dc *DiscoveryCommunity) do(f func()) {
	done := make(chan struct{})
	select {
	case dc.cmds <- func() { f(); close(done) }:
		<-done
	case <-dc.stop:
	}
}

// Bootstrap resolves seeds and registers them as candidates. Safe to
// call before Run, since it only talks to the framework's candidate
// factory and Bootstrap's own seed set, not community state.
func (dc *DiscoveryCommunity) Bootstrap(ctx context.Context, seeds []string) bool {
	return dc.bootstrap.AddCandidates(ctx, seeds)
}

// InterceptIntroduction is called just before the framework would emit
// an ordinary introduction request toward destination (spec.md §4.D).
func (dc *DiscoveryCommunity) InterceptIntroduction(destination framework.WalkCandidate) (bool, error) {
	var took bool
	var err error
	dc.do(func() { took, err = dc.protocol.Intercept(destination) })
	return took, err
}

// OnSimilarityRequest handles an inbound similarity-request.
func (dc *DiscoveryCommunity) OnSimilarityRequest(sender framework.Address, lan, wan framework.Address, tunnel bool, connType framework.ConnectionType, senderMID framework.MID, req SimilarityRequestPayload) SimilarityResponsePayload {
	var resp SimilarityResponsePayload
	dc.do(func() {
		dc.metrics.SimilarityRequestsTotal.WithLabelValues("in").Inc()
		resp = dc.protocol.OnSimilarityRequest(sender, lan, wan, tunnel, connType, senderMID, req)
		dc.metrics.SimilarityResponsesTotal.WithLabelValues("out").Inc()
	})
	return resp
}

// OnSimilarityResponse handles an inbound similarity-response.
func (dc *DiscoveryCommunity) OnSimilarityResponse(responder framework.WalkCandidate, responderMID framework.MID, timelineOK bool, resp SimilarityResponsePayload) error {
	var err error
	dc.do(func() {
		dc.metrics.SimilarityResponsesTotal.WithLabelValues("in").Inc()
		err = dc.protocol.OnSimilarityResponse(responder, responderMID, timelineOK, resp)
	})
	return err
}

// OnPing handles an inbound ping.
func (dc *DiscoveryCommunity) OnPing(sender framework.WalkCandidate, senderMID framework.MID, ping PingPayload) {
	dc.do(func() { dc.liveness.OnPing(sender, senderMID, ping) })
}

// OnPong handles an inbound pong.
func (dc *DiscoveryCommunity) OnPong(senderMID framework.MID, pong PingPayload) error {
	var err error
	dc.do(func() { err = dc.liveness.OnPong(senderMID, pong) })
	return err
}

// GetIntroduceCandidate overrides the framework's introduction-target
// selection (spec.md §4.F).
func (dc *DiscoveryCommunity) GetIntroduceCandidate(exclude framework.WalkCandidate) (framework.WalkCandidate, bool) {
	var target framework.WalkCandidate
	var ok bool
	dc.do(func() {
		target, ok = dc.steering.GetIntroduceCandidate(exclude)
		if ok {
			dc.metrics.IntroductionsSteeredTotal.Inc()
		}
	})
	return target, ok
}

// OnIntroductionRequest taps an inbound introduction request for
// introduce_me_to steering (spec.md §4.F).
func (dc *DiscoveryCommunity) OnIntroductionRequest(senderMID framework.MID, introduceMeTo *framework.MID) {
	dc.do(func() { dc.steering.OnIntroductionRequest(senderMID, introduceMeTo) })
}

func (dc *DiscoveryCommunity) localAddress() (lan, wan framework.Address, connType framework.ConnectionType) {
	if dc.localSelf == nil {
		return framework.Address{}, framework.Address{}, framework.ConnectionUnknown
	}
	return dc.localSelf.LANAddress(), dc.localSelf.WANAddress(), dc.localSelf.ConnectionType()
}

func (dc *DiscoveryCommunity) localPreferenceSet() preferenceSet {
	return newPreferenceSet(dc.localPreferenceList(dc.cfg.MaxPreferences))
}

func (dc *DiscoveryCommunity) localPreferenceList(max int) []framework.CID {
	var out []framework.CID
	for _, c := range dc.dispersy.Communities() {
		if !c.EnableCandidateWalker() {
			continue
		}
		out = append(out, c.CID())
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func (dc *DiscoveryCommunity) crossWire(cid framework.CID, candidate framework.WalkCandidate) {
	if candidate == nil {
		return
	}
	for _, c := range dc.dispersy.Communities() {
		if c.CID() == cid && c.EnableCandidateWalker() {
			dc.dispersy.CreateOrUpdateWalkCandidate(candidate.SockAddr(), candidate.LANAddress(), candidate.WANAddress(), candidate.Tunnel(), candidate.ConnectionType(), candidate)
		}
	}
}

func (dc *DiscoveryCommunity) emitPlainIntroductionRequest(destination framework.WalkCandidate) {
	msg := framework.Message{Name: "dispersy-introduction-request", Candidate: destination}
	if err := dc.dispersy.Send([]framework.WalkCandidate{destination}, []framework.Message{msg}); err != nil {
		dc.logger.Warn("failed to send introduction request", "err", err)
	}
}

func (dc *DiscoveryCommunity) emitSteeredIntroductionRequest(destination framework.WalkCandidate, introduceMeTo framework.MID) {
	msg := framework.Message{
		Name:      "dispersy-introduction-request",
		Candidate: destination,
		Payload:   IntroductionRequestPayload{IntroduceMeTo: &introduceMeTo},
	}
	if err := dc.dispersy.Send([]framework.WalkCandidate{destination}, []framework.Message{msg}); err != nil {
		dc.logger.Warn("failed to send steered introduction request", "err", err)
	}
}

// IntroductionRequestPayload is the extended introduction-request field
// this package adds on top of the framework's standard fields (spec.md
// §6): an optional steered target.
type IntroductionRequestPayload struct {
	IntroduceMeTo *framework.MID
}
