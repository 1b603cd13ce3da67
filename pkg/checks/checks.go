// Package checks implements the fleet's health probes: DNS resolution, an
// HTTP(S) GET, a TLS certificate expiry read and a best-effort ICMP echo.
// probe() is a pure synchronous operation with no persistence side effects;
// the caller (pkg/prober) is responsible for history and store writes.
package checks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	userAgent      = "fleetmon-prober/1.0 (+healthcheck)"
	httpTimeout    = 10 * time.Second
	tlsTimeout     = 10 * time.Second
	icmpTimeout    = 3 * time.Second
	dnsTimeout     = 5 * time.Second
	maxRedirects   = 10
	defaultTLSPort = "443"
)

// Metrics is the raw numeric output of one probe(url) call, prior to
// classification.
type Metrics struct {
	HTTPStatus  *int
	LatencyMs   *int
	PingMs      *float64
	SSLDaysLeft *int
	DNSResolved bool
	Redirects   *int
	ErrorsLast  *int
}

// Probe runs DNS, HTTP, TLS and ICMP checks against url and returns the
// combined metrics. Every sub-check is individually time-boxed; a failure in
// one never prevents the others from running.
func Probe(ctx context.Context, target string) (Metrics, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Metrics{}, fmt.Errorf("invalid site url: %w", err)
	}

	var m Metrics

	m.DNSResolved = resolveDNS(ctx, u.Hostname())

	httpStatus, latencyMs, redirects, httpErr := probeHTTP(ctx, target)
	m.HTTPStatus = httpStatus
	m.LatencyMs = latencyMs
	m.Redirects = redirects
	if httpErr != nil {
		errCount := 1
		m.ErrorsLast = &errCount
	}

	if u.Scheme == "https" {
		m.SSLDaysLeft = probeTLS(ctx, u.Hostname())
	}

	m.PingMs = probeICMP(ctx, u.Hostname())

	return m, nil
}

// resolveDNS reports whether the host resolves. A host that fails DNS but
// still answers HTTP (e.g. through a proxy) is not treated as fatal here —
// only the dns_resolved boolean reflects the outcome.
func resolveDNS(ctx context.Context, host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}

	c := dns.Client{Timeout: dnsTimeout}
	m := dns.Msg{}
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	conf, err := dnsClientConfig()
	if err != nil || len(conf.Servers) == 0 {
		_, lookupErr := net.DefaultResolver.LookupHost(ctx, host)
		return lookupErr == nil
	}

	server := net.JoinHostPort(conf.Servers[0], conf.Port)
	resp, _, err := c.Exchange(&m, server)
	if err != nil || resp == nil {
		_, lookupErr := net.DefaultResolver.LookupHost(ctx, host)
		return lookupErr == nil
	}
	return resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0
}

func dnsClientConfig() (*dns.ClientConfig, error) {
	return dns.ClientConfigFromFile("/etc/resolv.conf")
}

// probeHTTP performs the GET and returns final status code, elapsed
// milliseconds and redirect count. A transport/timeout error yields a nil
// status, per the spec's "null on failure" rule.
func probeHTTP(ctx context.Context, target string) (status *int, latencyMs *int, redirects *int, err error) {
	redirectCount := 0
	client := &http.Client{
		Timeout: httpTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirectCount++
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: false},
		},
	}

	reqCtx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, reqErr := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if reqErr != nil {
		return nil, nil, nil, reqErr
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, getErr := client.Do(req)
	elapsed := int(time.Since(start).Milliseconds())

	if getErr != nil {
		return nil, nil, &redirectCount, getErr
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	return &code, &elapsed, &redirectCount, nil
}

// probeTLS opens a TLS connection and reads the peer certificate's NotAfter,
// returning the integer number of days until expiry. This mirrors the
// certificate-expiry arithmetic the teacher's ACME client already performs
// against its own issued certificates, applied here to third-party endpoints.
func probeTLS(ctx context.Context, host string) *int {
	dialer := &net.Dialer{Timeout: tlsTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, defaultTLSPort), &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // we only read the peer cert's expiry, we don't trust the channel
		ServerName:         host,
	})
	if err != nil {
		return nil
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}

	notAfter := state.PeerCertificates[0].NotAfter
	days := int(time.Until(notAfter).Hours() / 24)
	return &days
}

// probeICMP sends one echo request and returns the round-trip time in
// milliseconds, or nil if it could not be sent or no reply arrived within
// the timeout. Uses an unprivileged ICMP datagram socket ("udp4"), which the
// host must permit; failure to open the socket degrades to nil, matching the
// spec's "ICMP is best-effort" non-goal.
func probeICMP(ctx context.Context, host string) *float64 {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(ips) == 0 {
		return nil
	}
	dst := &net.UDPAddr{IP: ips[0].IP}

	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return nil
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(time.Now().UnixNano() & 0xffff),
			Seq:  1,
			Data: []byte("fleetmon"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return nil
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(icmpTimeout)); err != nil {
		return nil
	}

	rb := make([]byte, 1500)
	n, _, err := conn.ReadFrom(rb)
	if err != nil {
		return nil
	}

	rtt := time.Since(start)

	rm, err := icmp.ParseMessage(1, rb[:n])
	if err != nil || rm.Type != ipv4.ICMPTypeEchoReply {
		return nil
	}

	ms := float64(rtt.Microseconds()) / 1000.0
	rounded := roundTo2(ms)
	return &rounded
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
