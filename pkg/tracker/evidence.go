package tracker

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// EvidenceFileName is the append-only destroy-evidence log's fixed name
// inside the state directory (spec.md §4.H, §6).
const EvidenceFileName = "persistent-storage.data"

// EvidenceLog records destroy-community transitions durably so a
// restarted tracker can recover which overlays were destroyed without
// replaying any network traffic (spec.md §4.H).
type EvidenceLog struct {
	path    string
	logger  *slog.Logger
	metrics *Metrics
}

// NewEvidenceLog builds an EvidenceLog rooted at stateDir.
func NewEvidenceLog(stateDir string, logger *slog.Logger, metrics *Metrics) *EvidenceLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvidenceLog{path: stateDir + string(os.PathSeparator) + EvidenceFileName, logger: logger, metrics: metrics}
}

// Append writes one destroy-transition record: a header comment naming
// the candidate the destroy message arrived from, the destroy message
// itself, the signer's identity packet, and every timeline proof
// message, deduplicated by packet bytes (spec.md §4.H).
func (l *EvidenceLog) Append(fromCandidate string, destroyPacket, identityPacket []byte, proofs []framework.Message) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open evidence log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# received dispersy-destroy-community from %s\n", fromCandidate)
	fmt.Fprintf(w, "dispersy-destroy-community %s\n", hex.EncodeToString(destroyPacket))
	fmt.Fprintf(w, "dispersy-identity %s\n", hex.EncodeToString(identityPacket))

	seen := map[string]struct{}{string(destroyPacket): {}, string(identityPacket): {}}
	lines := 2
	for _, proof := range proofs {
		key := string(proof.Packet)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fmt.Fprintf(w, "%s %s\n", proof.Name, hex.EncodeToString(proof.Packet))
		lines++
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush evidence log: %w", err)
	}
	if l.metrics != nil {
		l.metrics.DestroyEvidenceLines.Add(float64(lines + 1))
	}
	return nil
}

// ReplayHandler is invoked once per recovered packet during Replay. It
// mirrors the framework's incoming-packet path, with caching disabled
// and a synthetic loopback sender.
type ReplayHandler func(candidate framework.WalkCandidate, name string, packet []byte) error

// LoopbackCandidate is the synthetic sender Replay hands recovered
// packets as coming from (spec.md §4.H: "a synthetic loopback
// candidate").
func LoopbackCandidate() framework.WalkCandidate {
	return framework.NewCandidate(
		framework.Address{Host: "127.0.0.1", Port: 0},
		framework.Address{Host: "127.0.0.1", Port: 0},
		framework.Address{Host: "127.0.0.1", Port: 0},
		false,
		framework.ConnectionUnknown,
		nil,
	)
}

// Replay reads the evidence file in reverse line order and hands each
// hex-encoded packet to handler via a loopback candidate. A malformed
// individual line is logged and skipped rather than aborting startup
// (spec.md §4.H, §7). A missing file is not an error — startup proceeds
// with an empty destroy-evidence set.
func (l *EvidenceLog) Replay(handler ReplayHandler) error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		l.logger.Warn("failed to open evidence log, starting with empty destroy-evidence set", "err", err)
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		l.logger.Warn("failed to read evidence log, starting with empty destroy-evidence set", "err", err)
		return nil
	}

	candidate := LoopbackCandidate()
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			l.logger.Warn("skipping malformed evidence line", "line", line)
			continue
		}
		name, hexPacket := fields[0], fields[1]
		packet, err := hex.DecodeString(hexPacket)
		if err != nil {
			l.logger.Warn("skipping evidence line with bad hex", "line", line, "err", err)
			continue
		}
		if err := handler(candidate, name, packet); err != nil {
			l.logger.Warn("skipping evidence line handler error", "line", line, "err", err)
			continue
		}
	}
	return nil
}
