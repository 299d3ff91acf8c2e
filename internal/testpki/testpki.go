// Package testpki provides a throwaway PKI and local TLS servers shared
// across tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
	"gotest.tools/v3/assert"
)

// Template describes a certificate to issue.
type Template struct {
	CN          string
	Org         string
	IsCA        bool
	DNSNames    []string
	IPAddresses []net.IP
	NotBefore   time.Time
	NotAfter    time.Time
}

// Issued is a certificate together with its key and encodings.
type Issued struct {
	Cert *x509.Certificate
	Key  crypto.Signer
	DER  []byte
	PEM  []byte
}

// NewPrivateKey is a test helper that creates a new ECDSA private key.
func NewPrivateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NilError(t, err, "generating ecdsa private key")

	return priv
}

// Issue creates a certificate from tpl signed by parent. A nil parent
// produces a self-signed certificate.
func Issue(t *testing.T, tpl Template, parent *Issued) *Issued {
	t.Helper()

	key := NewPrivateKey(t)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	assert.NilError(t, err, "generating serial number")

	notBefore := tpl.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-1 * time.Hour)
	}

	notAfter := tpl.NotAfter
	if notAfter.IsZero() {
		notAfter = time.Now().Add(24 * time.Hour)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: tpl.CN,
		},
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		DNSNames:    tpl.DNSNames,
		IPAddresses: tpl.IPAddresses,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		KeyUsage:    x509.KeyUsageDigitalSignature,
	}

	if tpl.Org != "" {
		template.Subject.Organization = []string{tpl.Org}
	}

	// CA certificates may sign, and do not carry any serverAuth restriction
	if tpl.IsCA {
		template.IsCA = true
		template.BasicConstraintsValid = true
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign
		template.ExtKeyUsage = nil
	}

	certParent := template
	var signingKey crypto.Signer = key

	if parent != nil {
		certParent = parent.Cert
		signingKey = parent.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, certParent, &key.PublicKey, signingKey)
	assert.NilError(t, err, "creating certificate")

	cert, err := x509.ParseCertificate(der)
	assert.NilError(t, err, "parsing certificate")

	return &Issued{
		Cert: cert,
		Key:  key,
		DER:  der,
		PEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// Chain holds a root CA, an intermediate CA and a leaf issued by the
// intermediate.
type Chain struct {
	Root         *Issued
	Intermediate *Issued
	Leaf         *Issued
}

// NewChain issues a three level chain. The leaf is valid for dnsNames and
// for the loopback addresses.
func NewChain(t *testing.T, dnsNames ...string) *Chain {
	t.Helper()

	root := Issue(t, Template{CN: "Testing Root CA", Org: "Certpeek Test", IsCA: true}, nil)
	intermediate := Issue(t, Template{CN: "Testing Intermediate CA", Org: "Certpeek Test", IsCA: true}, root)
	leaf := Issue(t, Template{
		CN:          "Testing Leaf",
		DNSNames:    dnsNames,
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}, intermediate)

	return &Chain{Root: root, Intermediate: intermediate, Leaf: leaf}
}

// ServerCertificate returns the tls.Certificate presenting the leaf followed
// by the given extra certificates.
func (c *Chain) ServerCertificate(extra ...*Issued) tls.Certificate {
	certs := [][]byte{c.Leaf.DER}
	for _, e := range extra {
		certs = append(certs, e.DER)
	}

	return tls.Certificate{
		Certificate: certs,
		PrivateKey:  c.Leaf.Key,
		Leaf:        c.Leaf.Cert,
	}
}

// ServerOptions tunes StartTLSServer.
type ServerOptions struct {
	ProxyProtocol bool
}

// Server is a local TLS endpoint that completes handshakes and hangs up.
type Server struct {
	Addr string

	mu          sync.Mutex
	serverNames []string
	proxyHdrs   []*proxyproto.Header
}

// ServerNames returns the SNI values received so far.
func (s *Server) ServerNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.serverNames...)
}

// ProxyHeaders returns the PROXY protocol headers received so far.
func (s *Server) ProxyHeaders() []*proxyproto.Header {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*proxyproto.Header(nil), s.proxyHdrs...)
}

// StartTLSServer listens on a random loopback port and serves cert until
// the test ends.
func StartTLSServer(t *testing.T, cert tls.Certificate, opts ServerOptions) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err, "listening on loopback")

	srv := &Server{Addr: ln.Addr().String()}

	if opts.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			srv.mu.Lock()
			srv.serverNames = append(srv.serverNames, hello.ServerName)
			srv.mu.Unlock()

			return nil, nil
		},
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}

				continue
			}

			go srv.serve(conn, tlsConfig)
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})

	return srv
}

func (s *Server) serve(conn net.Conn, cfg *tls.Config) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if pc, ok := conn.(*proxyproto.Conn); ok {
		if hdr := pc.ProxyHeader(); hdr != nil {
			s.mu.Lock()
			s.proxyHdrs = append(s.proxyHdrs, hdr)
			s.mu.Unlock()
		}
	}

	tlsConn := tls.Server(conn, cfg)
	_ = tlsConn.Handshake()
}

// ClosedPort returns a loopback address with nothing listening on it.
func ClosedPort(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err, "listening on loopback")

	addr := ln.Addr().String()
	assert.NilError(t, ln.Close(), "closing listener")

	return addr
}
