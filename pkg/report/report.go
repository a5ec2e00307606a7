package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"

	pkgpinger "example.com/icmpping/pkg/pinger"
)

// Size printed on every reply line, independent of the actual reply length.
const displayedReplySize = 64

// NameResolver maps a responder to the host name shown on reply lines.
type NameResolver interface {
	Name(ctx context.Context, ip net.IP) string
}

type Header struct {
	Target      string
	Destination net.IP
	Source      net.IP
	Interface   string
}

// TextReporter writes the console report. Names may be nil, in which case
// responders are shown by address only.
type TextReporter struct {
	W     io.Writer
	Names NameResolver
	TTL   int
}

func (tr *TextReporter) WriteHeader(h Header) error {
	using := "default interface"
	if h.Interface != "" {
		using = "interface " + h.Interface
	}
	_, err := fmt.Fprintf(tr.W, "PING %s (%s) from %s using %s:\n", h.Target, h.Destination, h.Source, using)
	return err
}

func (tr *TextReporter) hostOf(ctx context.Context, ip net.IP) string {
	if tr.Names == nil {
		return ip.String()
	}
	return tr.Names.Name(ctx, ip)
}

func (tr *TextReporter) WriteResult(ctx context.Context, result pkgpinger.ProbeResult) error {
	if result.TimedOut() {
		_, err := fmt.Fprintf(tr.W, "Request timed out for seq=%d\n", result.Seq)
		return err
	}
	_, err := fmt.Fprintf(tr.W, "%d bytes from %s (%s): icmp_seq=%d ttl=%d time=%.2f ms\n",
		displayedReplySize, tr.hostOf(ctx, result.Responder), result.Responder, result.Seq, tr.TTL, *result.RTTMilliseconds)
	return err
}

// WriteSummary prints the session error, if any, followed by the statistics
// block. RTT figures are left out when nothing was received.
func (tr *TextReporter) WriteSummary(report *pkgpinger.SessionReport) error {
	if report.Error != "" {
		if _, err := fmt.Fprintf(tr.W, "Error: %s\n", report.Error); err != nil {
			return err
		}
	}

	summary := report.Summary
	if _, err := fmt.Fprintf(tr.W, "\n--- Ping Statistics ---\nPackets: Sent = %d, Received = %d, Lost = %d (%.2f%% loss)\n",
		summary.Transmitted, summary.Received, summary.Lost(), summary.LossPercent); err != nil {
		return err
	}
	if summary.RTT == nil {
		return nil
	}
	_, err := fmt.Fprintf(tr.W, "Minimum RTT: %.2f ms\nMaximum RTT: %.2f ms\nAverage RTT: %.2f ms\nStandard Deviation RTT: %.2f ms\n",
		summary.RTT.Min, summary.RTT.Max, summary.RTT.Mean, summary.RTT.StdDev)
	return err
}

// JSONReport is the document printed with --json.
type JSONReport struct {
	*pkgpinger.SessionReport
	Source    string `json:"source,omitempty"`
	Interface string `json:"interface,omitempty"`
}

func WriteJSON(w io.Writer, report *pkgpinger.SessionReport, h Header) error {
	doc := JSONReport{SessionReport: report, Interface: h.Interface}
	if h.Source != nil {
		doc.Source = h.Source.String()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
