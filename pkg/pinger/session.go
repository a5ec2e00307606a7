package pinger

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	pkgraw "example.com/icmpping/pkg/raw"
	pkgutils "example.com/icmpping/pkg/utils"
	"github.com/google/uuid"
)

const (
	DefaultCount    = 5
	DefaultTTL      = 64
	DefaultTimeout  = 1 * time.Second
	DefaultInterval = 1 * time.Second
)

type SessionState int

const (
	StateInitializing SessionState = iota
	StateProbeLoop
	StateFinalized
	StateAborted
)

func (st SessionState) String() string {
	switch st {
	case StateInitializing:
		return "initializing"
	case StateProbeLoop:
		return "probe-loop"
	case StateFinalized:
		return "finalized"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("SessionState(%d)", int(st))
	}
}

// Hooks are called synchronously from the probe loop. Any of them may be nil.
type Hooks struct {
	OnSent     func(seq int, nBytes int)
	OnReceived func(result ProbeResult, nBytes int)
	OnTimeout  func(seq int)

	// OnResult sees every ProbeResult right after it is recorded.
	OnResult func(result ProbeResult)
}

func (h *Hooks) sent(seq, nBytes int) {
	if h != nil && h.OnSent != nil {
		h.OnSent(seq, nBytes)
	}
}

func (h *Hooks) received(result ProbeResult, nBytes int) {
	if h != nil && h.OnReceived != nil {
		h.OnReceived(result, nBytes)
	}
}

func (h *Hooks) timedOut(seq int) {
	if h != nil && h.OnTimeout != nil {
		h.OnTimeout(seq)
	}
}

func (h *Hooks) result(result ProbeResult) {
	if h != nil && h.OnResult != nil {
		h.OnResult(result)
	}
}

type SessionConfig struct {
	// Target as the user typed it, only used for reporting.
	Target      string
	Destination net.IP

	Count     int
	TTL       int
	Interface string
	Timeout   time.Duration
	Interval  time.Duration

	// ICMP identifier, usually derived from the pid.
	ID int

	// Outcome of the caller's privilege check.
	Privileged bool
}

type SocketOpener func(config pkgraw.RawSocketConfig) (pkgraw.Transceiver, error)

func OpenRawSocket(config pkgraw.RawSocketConfig) (pkgraw.Transceiver, error) {
	return pkgraw.OpenRawSocket(config)
}

// Session sends Count sequential probes over a single socket.
type Session struct {
	ID     string
	Hooks  Hooks
	Logger *slog.Logger

	// OpenSocket, Clock and Sleep default to the real thing.
	OpenSocket SocketOpener
	Clock      func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error

	config SessionConfig
	codec  pkgraw.PacketCodec
	state  SessionState
}

func NewSession(config SessionConfig) (*Session, error) {
	if !config.Privileged {
		return nil, pkgutils.ErrNotPrivileged
	}
	if config.Destination == nil {
		return nil, fmt.Errorf("destination is required")
	}
	if config.Count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", config.Count)
	}
	if config.TTL < 1 || config.TTL > 255 {
		return nil, fmt.Errorf("ttl must be within 1..255, got %d", config.TTL)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative, got %s", config.Interval)
	}

	ipVersion := 6
	if config.Destination.To4() != nil {
		ipVersion = 4
	}
	codec, err := pkgraw.NewPacketCodec(ipVersion)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:         uuid.New().String(),
		OpenSocket: OpenRawSocket,
		config:     config,
		codec:      codec,
		state:      StateInitializing,
	}, nil
}

func (s *Session) State() SessionState {
	return s.state
}

func (s *Session) IPVersion() int {
	return s.codec.IPVersion()
}

func (s *Session) logger() *slog.Logger {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "session", "session", s.ID)
}

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run opens the socket, probes sequence numbers 1..Count and finalizes the
// report. The returned error is only set when the socket could not be set up,
// in which case nothing was sent. Failures inside the loop abort it and are
// recorded in the report next to the results gathered so far. Cancelling ctx
// stops the loop before the next probe.
func (s *Session) Run(ctx context.Context) (*SessionReport, error) {
	if s.state != StateInitializing {
		return nil, fmt.Errorf("session %s already ran", s.ID)
	}
	logger := s.logger()

	report := &SessionReport{
		SessionID:   s.ID,
		Target:      s.config.Target,
		Destination: s.config.Destination.String(),
		IPVersion:   s.codec.IPVersion(),
		TTL:         s.config.TTL,
		Results:     make([]ProbeResult, 0, s.config.Count),
	}

	sock, err := s.OpenSocket(pkgraw.RawSocketConfig{
		IPVersion: s.codec.IPVersion(),
		TTL:       s.config.TTL,
		Interface: s.config.Interface,
	})
	if err != nil {
		s.state = StateAborted
		return nil, fmt.Errorf("failed to open socket: %w", err)
	}
	closeSocket := func() {
		if sock == nil {
			return
		}
		if err := sock.Close(); err != nil {
			logger.Warn("failed to close socket", "error", err)
		}
		sock = nil
	}
	defer closeSocket()

	prober := &Prober{
		Transceiver: sock,
		Codec:       s.codec,
		ID:          s.config.ID,
		Clock:       s.Clock,
		Logger:      logger,
	}

	s.state = StateProbeLoop
	logger.Debug("starting probe loop", "destination", report.Destination, "count", s.config.Count, "id", s.config.ID&0xffff)

	for seq := 1; seq <= s.config.Count; seq++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		result, sent, err := prober.Probe(s.config.Destination, seq, s.config.Timeout, &s.Hooks)
		if sent {
			report.Results = append(report.Results, result)
		}
		// a failed read is reported as the session error, not as a timeout
		if sent && err == nil {
			s.Hooks.result(result)
		}
		if err != nil {
			logger.Error("aborting probe loop", "seq", seq, "error", err)
			report.Error = err.Error()
			s.state = StateAborted
			break
		}

		if seq < s.config.Count {
			if err := s.sleep(ctx, s.config.Interval); err != nil {
				report.Interrupted = true
				break
			}
		}
	}

	closeSocket()
	if s.state != StateAborted {
		s.state = StateFinalized
	}
	report.Summary = Summarize(report.Results)
	logger.Debug("session done", "state", s.state.String(), "transmitted", report.Summary.Transmitted, "received", report.Summary.Received)
	return report, nil
}
