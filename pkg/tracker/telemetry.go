package tracker

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// Telemetry prints the stdout lines spec.md §6 mandates, whitespace
// delimited, suppressed entirely when silent. REQ_IN2/RES_IN2 go through
// a per-candidate rate limiter so one noisy peer can't flood the
// terminal — an ambient hardening the original operator-facing tool
// didn't need, but any long-running daemon built from it would.
type Telemetry struct {
	w      io.Writer
	silent bool

	mu       sync.Mutex
	limiters map[framework.Address]*rate.Limiter
}

// NewTelemetry builds a Telemetry writer. w is typically os.Stdout.
func NewTelemetry(w io.Writer, silent bool) *Telemetry {
	return &Telemetry{w: w, silent: silent, limiters: make(map[framework.Address]*rate.Limiter)}
}

func (t *Telemetry) limiterFor(addr framework.Address) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(20), 40)
		t.limiters[addr] = l
	}
	return l
}

func (t *Telemetry) printf(format string, args ...any) {
	if t.silent {
		return
	}
	fmt.Fprintf(t.w, format+"\n", args...)
}

// ReqIn2 prints `REQ_IN2 <cid-hex> <mid-hex> <dispersy-version>
// <community-version> <host> <port>` for an inbound introduction
// request (spec.md §4.G, §6).
func (t *Telemetry) ReqIn2(cid framework.CID, mid framework.MID, dispersyVersion, communityVersion byte, from framework.Address) {
	if !t.limiterFor(from).Allow() {
		return
	}
	t.printf("REQ_IN2 %s %s %d %d %s %d", cid, mid, dispersyVersion, communityVersion, from.Host, from.Port)
}

// ResIn2 prints the symmetric line for an introduction response.
func (t *Telemetry) ResIn2(cid framework.CID, mid framework.MID, dispersyVersion, communityVersion byte, from framework.Address) {
	if !t.limiterFor(from).Allow() {
		return
	}
	t.printf("RES_IN2 %s %s %d %d %s %d", cid, mid, dispersyVersion, communityVersion, from.Host, from.Port)
}

// DestroyIn prints `DESTROY_IN <cid> <mid>` on receiving a valid
// destroy-community message.
func (t *Telemetry) DestroyIn(cid framework.CID, mid framework.MID) {
	t.printf("DESTROY_IN %s %s", cid, mid)
}

// DestroyOut prints `DESTROY_OUT <cid> <mid>` once per message a
// TrackerHardKilledCommunity still receives after being killed.
func (t *Telemetry) DestroyOut(cid framework.CID, mid framework.MID) {
	t.printf("DESTROY_OUT %s %s", cid, mid)
}

// Stats prints the periodic statistics block:
// `BANDWIDTH up down`, `COMMUNITY trackers killed discoveries`,
// `CANDIDATE2 total`, and one `OUTGOING name count` line per message
// name (spec.md §6), every StatsInterval.
func (t *Telemetry) Stats(bandwidthUp, bandwidthDown int64, trackers, killed, discoveries int, candidateTotal int, outgoing map[string]int) {
	t.printf("BANDWIDTH %d %d", bandwidthUp, bandwidthDown)
	t.printf("COMMUNITY %d %d %d", trackers, killed, discoveries)
	t.printf("CANDIDATE2 %d", candidateTotal)
	for name, count := range outgoing {
		t.printf("OUTGOING %s %d", name, count)
	}
}
