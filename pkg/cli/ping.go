package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	pkgmyprom "example.com/icmpping/pkg/myprom"
	pkgpinger "example.com/icmpping/pkg/pinger"
	pkgrdns "example.com/icmpping/pkg/rdns"
	pkgreport "example.com/icmpping/pkg/report"
	pkgutils "example.com/icmpping/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
)

const rdnsCacheValidity = 10 * time.Minute

type PingCmd struct {
	Target string `arg:"" help:"Host name or IP address to ping"`

	Count     int           `short:"c" help:"Number of echo requests to send" default:"5" env:"ICMPPING_COUNT"`
	IPv4      bool          `name:"ipv4" short:"4" help:"Use IPv4 only" xor:"family"`
	IPv6      bool          `name:"ipv6" short:"6" help:"Use IPv6 only" xor:"family"`
	Interface string        `short:"i" help:"Send through this network interface" env:"ICMPPING_INTERFACE"`
	TTL       int           `short:"t" name:"ttl" help:"IPv4 TTL or IPv6 hop limit of the requests" default:"64" env:"ICMPPING_TTL"`
	Timeout   time.Duration `help:"How long to wait for each reply" default:"1s" env:"ICMPPING_TIMEOUT"`
	Interval  time.Duration `help:"Pause between two requests" default:"1s" env:"ICMPPING_INTERVAL"`
	NoRDNS    bool          `name:"no-rdns" help:"Do not reverse resolve responders" env:"ICMPPING_NO_RDNS"`
	JSON      bool          `name:"json" help:"Print the report as JSON"`
	LogLevel  string        `help:"Diagnostics level: DEBUG, INFO, WARN or ERROR" default:"WARN" env:"ICMPPING_LOG_LEVEL"`

	// Prometheus stuffs
	MetricsListenAddress string `help:"Expose prometheus metrics on this address while pinging, disabled when empty" env:"ICMPPING_METRICS_LISTEN_ADDRESS"`
	MetricsPath          string `help:"Path to expose prometheus metrics" default:"/metrics" env:"ICMPPING_METRICS_PATH"`
	MetricsTextfile      string `help:"Write the final metrics to this file in node exporter textfile format" type:"path" env:"ICMPPING_METRICS_TEXTFILE"`
}

// Environment holds what PingCmd needs from the operating system.
type Environment struct {
	Stdout io.Writer
	Stderr io.Writer

	IsPrivileged  func() bool
	Resolver      *pkgutils.Resolver
	SourceAddress func(ctx context.Context, dst net.IP, ipVersion int, iface string) (net.IP, error)
	// LookupRoute is optional and only feeds debug logs.
	LookupRoute func(dst net.IP, considerPMTUCache bool) (*pkgutils.RouteInfo, error)
	OpenSocket  pkgpinger.SocketOpener
	// LookupAddr defaults to the system resolver.
	LookupAddr pkgrdns.LookupAddrFunc

	Pid       int
	StartedAt time.Time
}

func DefaultEnvironment() *Environment {
	return &Environment{
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		IsPrivileged:  pkgutils.IsPrivileged,
		Resolver:      &pkgutils.Resolver{},
		SourceAddress: pkgutils.SourceAddress,
		LookupRoute:   pkgutils.LookupRoute,
		OpenSocket:    pkgpinger.OpenRawSocket,
		Pid:           os.Getpid(),
		StartedAt:     time.Now(),
	}
}

func (pingCmd *PingCmd) Run(sharedCtx *pkgutils.GlobalSharedContext) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	env := DefaultEnvironment()
	if sharedCtx != nil && !sharedCtx.StartedAt.IsZero() {
		env.StartedAt = sharedCtx.StartedAt
	}
	return pingCmd.Execute(ctx, env)
}

func (pingCmd *PingCmd) validate() error {
	if pingCmd.IPv4 && pingCmd.IPv6 {
		return fmt.Errorf("-4 and -6 are mutually exclusive")
	}
	if pingCmd.Count < 1 {
		return fmt.Errorf("count must be positive, got %d", pingCmd.Count)
	}
	if pingCmd.TTL < 1 || pingCmd.TTL > 255 {
		return fmt.Errorf("ttl must be within 1..255, got %d", pingCmd.TTL)
	}
	if pingCmd.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", pingCmd.Timeout)
	}
	if pingCmd.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", pingCmd.Interval)
	}
	return nil
}

// Execute runs one ping session. It returns an error only for problems that
// prevent the session from starting; everything that happens once probing
// began is part of the printed report.
func (pingCmd *PingCmd) Execute(ctx context.Context, env *Environment) error {
	logger := pkgutils.NewLogger(env.Stderr, pingCmd.LogLevel)

	if err := pingCmd.validate(); err != nil {
		return err
	}
	if !env.IsPrivileged() {
		return pkgutils.ErrNotPrivileged
	}

	dst, ipVersion, err := env.Resolver.Resolve(ctx, pingCmd.Target, pingCmd.IPv4, pingCmd.IPv6)
	if err != nil {
		return err
	}
	logger.Debug("resolved target", "target", pingCmd.Target, "destination", dst.String(), "ip_version", ipVersion)

	src, err := env.SourceAddress(ctx, dst, ipVersion, pingCmd.Interface)
	if err != nil {
		return err
	}
	if env.LookupRoute != nil {
		if route, err := env.LookupRoute(dst, true); err != nil {
			logger.Debug("failed to look up route", "destination", dst.String(), "error", err)
		} else {
			logger.Debug("route to destination", "interface", route.Interface, "gateway", route.Gateway, "mtu", route.MTU)
		}
	}

	counterStore := pkgmyprom.NewCounterStore()
	startedAt := env.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	counterStore.StartedTime.Set(float64(startedAt.Unix()))
	if pingCmd.MetricsListenAddress != "" {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()
		if _, err := counterStore.Serve(metricsCtx, pingCmd.MetricsListenAddress, pingCmd.MetricsPath, logger); err != nil {
			return err
		}
	}

	session, err := pkgpinger.NewSession(pkgpinger.SessionConfig{
		Target:      pingCmd.Target,
		Destination: dst,
		Count:       pingCmd.Count,
		TTL:         pingCmd.TTL,
		Interface:   pingCmd.Interface,
		Timeout:     pingCmd.Timeout,
		Interval:    pingCmd.Interval,
		ID:          env.Pid & 0xffff,
		Privileged:  true,
	})
	if err != nil {
		return err
	}
	session.Logger = logger
	if env.OpenSocket != nil {
		session.OpenSocket = env.OpenSocket
	}

	header := pkgreport.Header{
		Target:      pingCmd.Target,
		Destination: dst,
		Source:      src,
		Interface:   pingCmd.Interface,
	}
	textReporter := &pkgreport.TextReporter{W: env.Stdout, TTL: pingCmd.TTL}
	if !pingCmd.NoRDNS {
		textReporter.Names = newNameCache(env, counterStore)
	}

	session.Hooks = pingCmd.hooks(ctx, counterStore, prometheus.Labels{
		pkgmyprom.PromLabelTarget:      pingCmd.Target,
		pkgmyprom.PromLabelDestination: dst.String(),
	}, textReporter, logger)

	if !pingCmd.JSON {
		if err := textReporter.WriteHeader(header); err != nil {
			return err
		}
	}

	report, err := session.Run(ctx)
	if err != nil {
		return err
	}

	if pingCmd.JSON {
		err = pkgreport.WriteJSON(env.Stdout, report, header)
	} else {
		err = textReporter.WriteSummary(report)
	}
	if err != nil {
		return err
	}

	if pingCmd.MetricsTextfile != "" {
		if err := counterStore.WriteTextfile(pingCmd.MetricsTextfile); err != nil {
			logger.Warn("failed to export metrics", "error", err)
		}
	}
	return nil
}

func newNameCache(env *Environment, counterStore *pkgmyprom.CounterStore) *pkgrdns.Cache {
	cache := pkgrdns.NewCache(rdnsCacheValidity, func(ctx context.Context, stats pkgrdns.LookupStats) {
		counterStore.RDNSRequests.With(prometheus.Labels{
			pkgmyprom.PromLabelCacheHit: strconv.FormatBool(stats.CacheHit),
			pkgmyprom.PromLabelHasError: strconv.FormatBool(stats.HasError),
		}).Inc()
	})
	cache.Lookup = env.LookupAddr
	return cache
}

func (pingCmd *PingCmd) hooks(ctx context.Context, counterStore *pkgmyprom.CounterStore, labels prometheus.Labels, textReporter *pkgreport.TextReporter, logger *slog.Logger) pkgpinger.Hooks {
	return pkgpinger.Hooks{
		OnSent: func(seq int, nBytes int) {
			counterStore.NumPktsSent.With(labels).Inc()
			counterStore.NumBytesSent.With(labels).Add(float64(nBytes))
		},
		OnReceived: func(result pkgpinger.ProbeResult, nBytes int) {
			counterStore.NumPktsReceived.With(labels).Inc()
			counterStore.NumBytesReceived.With(labels).Add(float64(nBytes))
			counterStore.RTTMs.With(labels).Observe(*result.RTTMilliseconds)
		},
		OnTimeout: func(seq int) {
			counterStore.NumTimeouts.With(labels).Inc()
		},
		OnResult: func(result pkgpinger.ProbeResult) {
			if pingCmd.JSON {
				return
			}
			if err := textReporter.WriteResult(ctx, result); err != nil {
				logger.Warn("failed to print probe result", "seq", result.Seq, "error", err)
			}
		},
	}
}
