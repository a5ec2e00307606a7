package pinger

import (
	"net"
	"time"
)

// ProbeResult is the outcome of one echo request. RTTMilliseconds is nil
// when no matching reply arrived in time.
type ProbeResult struct {
	Seq             int      `json:"seq"`
	Responder       net.IP   `json:"responder,omitempty"`
	RTTMilliseconds *float64 `json:"rtt_ms,omitempty"`
}

func (pr ProbeResult) TimedOut() bool {
	return pr.RTTMilliseconds == nil
}

func (pr ProbeResult) RTT() time.Duration {
	if pr.RTTMilliseconds == nil {
		return 0
	}
	return time.Duration(*pr.RTTMilliseconds * float64(time.Millisecond))
}

func newReplied(seq int, responder net.IP, rtt time.Duration) ProbeResult {
	ms := float64(rtt) / float64(time.Millisecond)
	return ProbeResult{Seq: seq, Responder: responder, RTTMilliseconds: &ms}
}

func newTimedOut(seq int) ProbeResult {
	return ProbeResult{Seq: seq}
}

// SessionReport is what a Session hands back once it is finalized.
type SessionReport struct {
	SessionID   string        `json:"session_id"`
	Target      string        `json:"target"`
	Destination string        `json:"destination"`
	IPVersion   int           `json:"ip_version"`
	TTL         int           `json:"ttl"`
	Results     []ProbeResult `json:"results"`
	Summary     Summary       `json:"summary"`
	Error       string        `json:"error,omitempty"`
	Interrupted bool          `json:"interrupted,omitempty"`
}
