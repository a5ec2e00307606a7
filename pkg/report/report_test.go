package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"

	pkgpinger "example.com/icmpping/pkg/pinger"
	"github.com/google/go-cmp/cmp"
)

type staticNames map[string]string

func (s staticNames) Name(ctx context.Context, ip net.IP) string {
	if name, ok := s[ip.String()]; ok {
		return name
	}
	return ip.String()
}

func ms(v float64) *float64 { return &v }

func sampleReport() *pkgpinger.SessionReport {
	responder := net.ParseIP("192.0.2.1").To4()
	results := []pkgpinger.ProbeResult{
		{Seq: 1, Responder: responder, RTTMilliseconds: ms(10)},
		{Seq: 2},
		{Seq: 3, Responder: responder, RTTMilliseconds: ms(20)},
	}
	return &pkgpinger.SessionReport{
		SessionID:   "6f1c1f34-4b43-4a53-9d2b-0c9d1b0f2a11",
		Target:      "example.test",
		Destination: "192.0.2.1",
		IPVersion:   4,
		TTL:         64,
		Results:     results,
		Summary:     pkgpinger.Summarize(results),
	}
}

func TestTextReport(t *testing.T) {
	var buf bytes.Buffer
	tr := &TextReporter{W: &buf, Names: staticNames{"192.0.2.1": "router.example.net"}, TTL: 64}
	report := sampleReport()

	if err := tr.WriteHeader(Header{
		Target:      "example.test",
		Destination: net.ParseIP("192.0.2.1"),
		Source:      net.ParseIP("192.0.2.100"),
	}); err != nil {
		t.Fatal(err)
	}
	for _, result := range report.Results {
		if err := tr.WriteResult(context.Background(), result); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.WriteSummary(report); err != nil {
		t.Fatal(err)
	}

	want := `PING example.test (192.0.2.1) from 192.0.2.100 using default interface:
64 bytes from router.example.net (192.0.2.1): icmp_seq=1 ttl=64 time=10.00 ms
Request timed out for seq=2
64 bytes from router.example.net (192.0.2.1): icmp_seq=3 ttl=64 time=20.00 ms

--- Ping Statistics ---
Packets: Sent = 3, Received = 2, Lost = 1 (33.33% loss)
Minimum RTT: 10.00 ms
Maximum RTT: 20.00 ms
Average RTT: 15.00 ms
Standard Deviation RTT: 5.00 ms
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestTextReportWithoutReplies(t *testing.T) {
	var buf bytes.Buffer
	tr := &TextReporter{W: &buf, TTL: 64}

	results := []pkgpinger.ProbeResult{{Seq: 1}, {Seq: 2}}
	report := &pkgpinger.SessionReport{
		Results: results,
		Summary: pkgpinger.Summarize(results),
		Error:   "failed to send probe 3: network is unreachable",
	}
	if err := tr.WriteSummary(report); err != nil {
		t.Fatal(err)
	}

	want := `Error: failed to send probe 3: network is unreachable

--- Ping Statistics ---
Packets: Sent = 2, Received = 0, Lost = 2 (100.00% loss)
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestTextReportInterfaceAndNoNames(t *testing.T) {
	var buf bytes.Buffer
	tr := &TextReporter{W: &buf, TTL: 12}

	tr.WriteHeader(Header{
		Target:      "2001:db8::1",
		Destination: net.ParseIP("2001:db8::1"),
		Source:      net.ParseIP("2001:db8::100"),
		Interface:   "eth0",
	})
	tr.WriteResult(context.Background(), pkgpinger.ProbeResult{Seq: 7, Responder: net.ParseIP("2001:db8::1"), RTTMilliseconds: ms(0.1234)})

	want := `PING 2001:db8::1 (2001:db8::1) from 2001:db8::100 using interface eth0:
64 bytes from 2001:db8::1 (2001:db8::1): icmp_seq=7 ttl=12 time=0.12 ms
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	if err := WriteJSON(&buf, report, Header{Source: net.ParseIP("192.0.2.100"), Interface: "eth0"}); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		SessionID string `json:"session_id"`
		Source    string `json:"source"`
		Interface string `json:"interface"`
		Results   []struct {
			Seq   int      `json:"seq"`
			RTTMs *float64 `json:"rtt_ms"`
		} `json:"results"`
		Summary struct {
			Transmitted int `json:"transmitted"`
			Received    int `json:"received"`
			RTT         *struct {
				Mean float64 `json:"mean_ms"`
			} `json:"rtt"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}

	if doc.SessionID != report.SessionID || doc.Source != "192.0.2.100" || doc.Interface != "eth0" {
		t.Errorf("unexpected envelope: %+v", doc)
	}
	if len(doc.Results) != 3 || doc.Results[1].RTTMs != nil || *doc.Results[2].RTTMs != 20 {
		t.Errorf("unexpected results: %+v", doc.Results)
	}
	if doc.Summary.Transmitted != 3 || doc.Summary.Received != 2 || doc.Summary.RTT == nil || doc.Summary.RTT.Mean != 15 {
		t.Errorf("unexpected summary: %+v", doc.Summary)
	}
}
