package overlay

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/zeroconf/v2"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// DefaultBootstrapSeeds is the compiled-in seed list used when no seed
// file is configured or the file is empty (spec.md §4.A).
var DefaultBootstrapSeeds = []string{
	"bootstrap1.dispersy.example:6421",
	"bootstrap2.dispersy.example:6421",
	"bootstrap3.dispersy.example:6421",
}

// bootstrapServiceName is the DNS-SD service type bootstrap peers
// advertise on the LAN, mirroring the way Shurli nodes advertise
// themselves for zero-configuration discovery.
const bootstrapServiceName = "_dispersy._udp"

// Bootstrap resolves the configured seed addresses into candidates and
// hands each one to the framework's candidate pool (spec.md §4.A).
type Bootstrap struct {
	dispersy framework.Dispersy
	resolver *net.Resolver
	logger   *slog.Logger

	mu    sync.Mutex
	seeds map[framework.Address]struct{}
}

// NewBootstrap builds a Bootstrap resolver over dispersy's candidate
// factory.
func NewBootstrap(dispersy framework.Dispersy, logger *slog.Logger) *Bootstrap {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrap{
		dispersy: dispersy,
		resolver: net.DefaultResolver,
		logger:   logger,
		seeds:    make(map[framework.Address]struct{}),
	}
}

// LoadSeeds reads "host port" pairs from path, one per line, blank lines
// and lines starting with "#" ignored. An empty or missing path falls
// back to DefaultBootstrapSeeds. Each surviving entry may be either a
// plain host:port or a multiaddr (e.g. "/dns4/host/udp/6421"); multiaddr
// entries are accepted so a seed file can be shared with libp2p-based
// tooling without translation.
func LoadSeeds(path string) ([]string, error) {
	if path == "" {
		return DefaultBootstrapSeeds, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return DefaultBootstrapSeeds, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return DefaultBootstrapSeeds, nil
	}
	return out, nil
}

// Resolve looks up every seed entry concurrently and returns once all
// lookups have finished. It calls onResolved once per address it manages
// to resolve, even when other entries fail, and returns false if any
// entry was malformed or failed to resolve at all — resolution failures
// never escape as a Go error across this boundary (spec.md §4.A, §7).
func (b *Bootstrap) Resolve(ctx context.Context, seeds []string, onResolved func(framework.Address)) (success bool) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	allOK := true

	for _, seed := range seeds {
		host, port, err := parseSeed(seed)
		if err != nil {
			b.logger.Warn("skipping malformed bootstrap seed", "seed", seed, "err", err)
			mu.Lock()
			allOK = false
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(host string, port int) {
			defer wg.Done()
			addrs, err := b.resolver.LookupHost(ctx, host)
			if err != nil || len(addrs) == 0 {
				b.logger.Warn("bootstrap seed did not resolve", "host", host, "err", err)
				mu.Lock()
				allOK = false
				mu.Unlock()
				return
			}
			for _, ip := range addrs {
				addr := framework.Address{Host: ip, Port: port}
				onResolved(addr)
			}
		}(host, port)
	}

	wg.Wait()
	return allOK
}

// AddCandidates resolves seeds and registers every resolved address as a
// non-tunnel candidate in the framework's candidate pool.
func (b *Bootstrap) AddCandidates(ctx context.Context, seeds []string) bool {
	return b.Resolve(ctx, seeds, func(addr framework.Address) {
		b.mu.Lock()
		b.seeds[addr] = struct{}{}
		b.mu.Unlock()
		b.dispersy.CreateOrUpdateWalkCandidate(addr, framework.Address{}, addr, false, framework.ConnectionUnknown, nil)
	})
}

// IsSeed reports whether a candidate's socket address matches a
// previously resolved bootstrap seed, used by the similarity protocol to
// skip similarity traffic toward seeds (spec.md §4.D).
func (b *Bootstrap) IsSeed(c framework.WalkCandidate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.seeds[c.SockAddr()]
	return ok
}

// ResolveWithBackoff retries AddCandidates with a fixed back-off until it
// fully succeeds or ctx is done, matching the caller-provided "resolve
// until success" retry policy spec.md §4.A calls for.
func (b *Bootstrap) ResolveWithBackoff(ctx context.Context, seeds []string, backoff time.Duration) {
	for {
		if b.AddCandidates(ctx, seeds) {
			return
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

func parseSeed(seed string) (string, int, error) {
	if strings.HasPrefix(seed, "/") {
		return parseMultiaddrSeed(seed)
	}
	host, portStr, err := net.SplitHostPort(seed)
	if err != nil {
		// accept "host port" (space-separated) as well as "host:port"
		fields := strings.Fields(seed)
		if len(fields) == 2 {
			host, portStr = fields[0], fields[1]
		} else {
			return "", 0, err
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parseMultiaddrSeed(seed string) (string, int, error) {
	addr, err := ma.NewMultiaddr(seed)
	if err != nil {
		return "", 0, err
	}
	_, hostport, err := manet.DialArgs(addr)
	if err != nil {
		return "", 0, err
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// LANDiscovery supplements the bootstrap list with peers advertising
// themselves on the local network via mDNS, the same zero-configuration
// mechanism Shurli nodes use to find each other on a LAN.
type LANDiscovery struct {
	dispersy framework.Dispersy
	logger   *slog.Logger
	port     int
}

// NewLANDiscovery builds a LANDiscovery that advertises and browses for
// the dispersy service on port.
func NewLANDiscovery(dispersy framework.Dispersy, port int, logger *slog.Logger) *LANDiscovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &LANDiscovery{dispersy: dispersy, port: port, logger: logger}
}

// Start registers this node's mDNS service and browses for peers until
// ctx is canceled. Discovered peers are added as non-tunnel candidates.
func (d *LANDiscovery) Start(ctx context.Context) error {
	server, err := zeroconf.Register("dispersy-node", bootstrapServiceName, "local.", d.port, nil, nil)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			for _, ip := range entry.AddrIPv4 {
				addr := framework.Address{Host: ip.String(), Port: entry.Port}
				d.dispersy.CreateOrUpdateWalkCandidate(addr, framework.Address{}, addr, false, framework.ConnectionUnknown, nil)
			}
		}
	}()

	go func() {
		if err := zeroconf.Browse(ctx, bootstrapServiceName, "local.", entries); err != nil {
			d.logger.Warn("mdns browse ended", "err", err)
		}
	}()

	return nil
}
