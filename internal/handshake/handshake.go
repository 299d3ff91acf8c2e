// Package handshake dials a target, performs the TLS handshake as a client
// and returns the certificate chain exactly as the peer presented it.
package handshake

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xenos76/certpeek/internal/anchors"
	"github.com/xenos76/certpeek/internal/target"
)

const (
	DefaultTimeout = 10 * time.Second

	proxyProtoDefaultSrcIPv4 = "192.0.2.1"
	proxyProtoDefaultSrcIPv6 = "2001:db8::1"
	proxyProtoDefaultSrcPort = 54321
)

// Chain is the ordered list of DER certificates sent by the peer. Index 0
// is the leaf.
type Chain [][]byte

// Trust is the verdict on the presented chain.
type Trust struct {
	Trusted bool
	// Deferred is set when validation ran after an unverified handshake.
	Deferred bool
	Reason   string
}

func (t Trust) String() string {
	if t.Trusted {
		return "trusted"
	}

	return "NOT TRUSTED: " + t.Reason
}

// Result is what a successful handshake leaves behind.
type Result struct {
	Chain       Chain
	PeerAddr    string
	Version     string
	CipherSuite string
	Trust       Trust
	Elapsed     time.Duration
}

type config struct {
	timeout           time.Duration
	proxyProtocol     bool
	deferVerification bool
	logger            logrus.FieldLogger
}

// Option configures Connect.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithTimeout bounds the dial and the handshake together. Zero disables the
// bound and leaves only the context.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.timeout = d
	})
}

// WithProxyProtocol sends a PROXY protocol v2 header right after the TCP
// connection is established, before the ClientHello.
func WithProxyProtocol(enabled bool) Option {
	return optionFunc(func(c *config) {
		c.proxyProtocol = enabled
	})
}

// WithDeferredVerification accepts any peer certificate during the
// handshake and validates the chain afterwards, reporting the outcome in
// Result.Trust instead of failing.
func WithDeferredVerification(enabled bool) Option {
	return optionFunc(func(c *config) {
		c.deferVerification = enabled
	})
}

func WithLogger(l logrus.FieldLogger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// Connect dials t, authenticates the peer against trust and t.IdentityName
// and returns the presented chain. The connection is closed before
// returning. Nothing is retried.
func Connect(ctx context.Context, t target.Target, trust *anchors.Set, opts ...Option) (*Result, error) {
	if trust == nil {
		return nil, errors.New("no trust anchors provided")
	}

	cfg := &config{
		timeout: DefaultTimeout,
		logger:  logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt.apply(cfg)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	addr := t.DialAddress()
	log := cfg.logger.WithFields(logrus.Fields{
		"addr":     addr,
		"identity": t.IdentityName,
	})

	start := time.Now()

	log.Debug("dialing")

	dialer := &net.Dialer{}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &NetworkError{Addr: addr, Err: withContextErr(ctx, err)}
	}
	defer conn.Close()

	log.WithField("peer", conn.RemoteAddr().String()).Debug("TCP connection established")

	if cfg.proxyProtocol {
		header := proxyProtoHeader(conn.RemoteAddr())
		if _, err := header.WriteTo(conn); err != nil {
			return nil, &NetworkError{
				Addr: addr,
				Err:  fmt.Errorf("unable to send PROXY protocol header: %w", err),
			}
		}

		log.Debug("PROXY protocol v2 header sent")
	}

	tlsConn := tls.Client(conn, clientConfig(t, trust, cfg.deferVerification))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, &TLSError{Identity: t.IdentityName, Err: withContextErr(ctx, err)}
	}

	cs := tlsConn.ConnectionState()

	chain, err := peerChain(cs)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Chain:       chain,
		PeerAddr:    conn.RemoteAddr().String(),
		Version:     TLSVersionName(cs.Version),
		CipherSuite: CipherSuiteName(cs.CipherSuite),
		Trust:       Trust{Trusted: true},
		Elapsed:     time.Since(start),
	}

	if cfg.deferVerification {
		res.Trust = verifyPeer(cs.PeerCertificates, t.IdentityName, trust)
	}

	log.WithFields(logrus.Fields{
		"certificates": len(chain),
		"version":      res.Version,
		"trust":        res.Trust.String(),
	}).Debug("handshake complete")

	return res, nil
}

// withContextErr makes cancellation and deadline errors matchable with
// errors.Is whatever the net package wrapped them into.
func withContextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	return err
}

func clientConfig(t target.Target, trust *anchors.Set, deferVerification bool) *tls.Config {
	return &tls.Config{
		RootCAs:            trust.Pool(),
		ServerName:         t.IdentityName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: deferVerification, //nolint:gosec // validated by verifyPeer after the handshake
	}
}

// peerChain copies the raw certificates out of the connection state, in the
// order they were transmitted.
func peerChain(cs tls.ConnectionState) (Chain, error) {
	if len(cs.PeerCertificates) == 0 {
		return nil, ErrNoCertificates
	}

	chain := make(Chain, 0, len(cs.PeerCertificates))
	for _, c := range cs.PeerCertificates {
		raw := make([]byte, len(c.Raw))
		copy(raw, c.Raw)
		chain = append(chain, raw)
	}

	return chain, nil
}

// verifyPeer applies the validation a default handshake would have done:
// the leaf must chain to trust through the presented intermediates and
// match identity.
func verifyPeer(certs []*x509.Certificate, identity string, trust *anchors.Set) Trust {
	verdict := Trust{Deferred: true}

	if len(certs) == 0 {
		verdict.Reason = ErrNoCertificates.Error()
		return verdict
	}

	opts := x509.VerifyOptions{
		DNSName:       identity,
		Roots:         trust.Pool(),
		Intermediates: x509.NewCertPool(),
	}

	for _, ic := range certs[1:] {
		opts.Intermediates.AddCert(ic)
	}

	if _, err := certs[0].Verify(opts); err != nil {
		verdict.Reason = err.Error()
		return verdict
	}

	verdict.Trusted = true

	return verdict
}

func TLSVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%x)", v)
	}
}

func CipherSuiteName(id uint16) string {
	cs := tls.CipherSuiteName(id)
	if cs == "" {
		return fmt.Sprintf("Unknown (0x%x)", id)
	}

	return cs
}
