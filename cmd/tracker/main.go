// Command tracker runs the dispersy DiscoveryCommunity plus the
// Tracker's on-demand overlay bookkeeping as a standalone process
// (spec.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Captain-Coder/dispersy/internal/config"
	"github.com/Captain-Coder/dispersy/internal/keys"
	"github.com/Captain-Coder/dispersy/pkg/framework"
	"github.com/Captain-Coder/dispersy/pkg/overlay"
	"github.com/Captain-Coder/dispersy/pkg/tracker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := tracker.DefaultConfig()

	var (
		statedir   = flag.String("statedir", cfg.StateDir, "directory holding the identity key and destroy-evidence log")
		ip         = flag.String("ip", cfg.IP, "address to listen on")
		port       = flag.Int("port", cfg.Port, "UDP port to listen on")
		silent     = flag.Bool("silent", cfg.Silent, "suppress all stdout telemetry lines")
		crypto     = flag.String("crypto", cfg.Crypto, "crypto mode: NoCrypto or NoVerifyCrypto")
		logID      = flag.String("log-identifier", "", "identifier attached to every log line (default: a generated uuid)")
		configFile = flag.String("config", "", "optional YAML config file, overridden by any flag set explicitly")
		seedFile   = flag.String("seed-file", "", "file of bootstrap seed addresses, one per line")
		lan        = flag.Bool("lan-discovery", false, "advertise and browse for peers via mDNS")
	)
	flag.Parse()

	if *logID == "" {
		*logID = uuid.NewString()
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("log_identifier", *logID)
	slog.SetDefault(logger)

	fc, err := config.LoadTrackerConfig(*configFile)
	if err != nil {
		logger.Error("failed to load config file", "err", err)
		return 1
	}
	cfg = fc.ApplyTo(cfg)

	var seedFileSet, lanSet bool
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "statedir":
			cfg.StateDir = *statedir
		case "ip":
			cfg.IP = *ip
		case "port":
			cfg.Port = *port
		case "silent":
			cfg.Silent = *silent
		case "crypto":
			cfg.Crypto = *crypto
		case "log-identifier":
			cfg.LogIdentifier = *logID
		case "seed-file":
			seedFileSet = true
		case "lan-discovery":
			lanSet = true
		}
	})
	if cfg.LogIdentifier == "" {
		cfg.LogIdentifier = *logID
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil)).With("log_identifier", cfg.LogIdentifier)
	slog.SetDefault(logger)

	// The config file sets the default for seed-file/lan-discovery; an
	// explicitly passed flag always overrides it.
	effectiveSeedFile := *seedFile
	if !seedFileSet && fc.BootstrapSeedFile != "" {
		effectiveSeedFile = fc.BootstrapSeedFile
	}
	effectiveLAN := *lan
	if !lanSet && fc.LANDiscovery {
		effectiveLAN = true
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		logger.Error("failed to create state dir", "dir", cfg.StateDir, "err", err)
		return 1
	}

	mode := keys.Mode(cfg.Crypto)
	kp, err := keys.NewProvider(mode, filepath.Join(cfg.StateDir, "ec_multichain.pem"))
	if err != nil {
		logger.Error("failed to load identity", "err", err)
		return 1
	}
	localMID, err := kp.MID()
	if err != nil {
		logger.Error("failed to derive local member id", "err", err)
		return 1
	}

	dispersy := framework.NewInMemoryDispersy(nil, nil)

	trackerMetrics := tracker.NewMetrics()
	telemetry := tracker.NewTelemetry(os.Stdout, cfg.Silent)
	evidence := tracker.NewEvidenceLog(cfg.StateDir, logger, trackerMetrics)
	factory := tracker.NewFactory(dispersy, telemetry, evidence, trackerMetrics, logger)

	var discoveryCID framework.CID
	copy(discoveryCID[:], []byte("discovery-community!"))

	overlayCfg := overlay.DefaultConfig()
	discovery := overlay.NewDiscoveryCommunity(discoveryCID, overlayCfg, dispersy, localMID, logger, overlay.NewMetrics())
	dispersy.AddCommunity(discovery)
	factory.RegisterExempt(discovery)

	seeds, err := overlay.LoadSeeds(effectiveSeedFile)
	if err != nil {
		logger.Error("failed to load bootstrap seed file", "err", err)
		return 1
	}

	if err := factory.ReplayEvidence(); err != nil {
		logger.Error("failed to replay destroy-evidence log", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return discovery.Run(gctx) })
	g.Go(func() error {
		if !discovery.Bootstrap(gctx, seeds) {
			logger.Warn("some bootstrap seeds never resolved")
		}
		return nil
	})
	if effectiveLAN {
		lanDiscovery := overlay.NewLANDiscovery(dispersy, cfg.Port, logger)
		g.Go(func() error { return lanDiscovery.Start(gctx) })
	}

	stopCleanup := make(chan struct{})
	g.Go(func() error {
		factory.Run(stopCleanup)
		return nil
	})

	if !cfg.Silent {
		g.Go(func() error {
			ticker := time.NewTicker(tracker.StatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					trackers, killed, discoveries, total := factory.StatsSnapshot()
					telemetry.Stats(0, 0, trackers, killed, discoveries, total, nil)
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	logger.Info("tracker started", "ip", cfg.IP, "port", cfg.Port, "crypto", cfg.Crypto, "state_dir", cfg.StateDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-gctx.Done():
		logger.Warn("a supervised task exited, shutting down")
	}

	cancel()
	close(stopCleanup)
	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", "err", err)
		return 1
	}

	fmt.Fprintln(os.Stderr, "tracker stopped")
	return 0
}
