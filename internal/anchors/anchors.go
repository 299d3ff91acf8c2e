// Package anchors provides the set of root certificate authorities used to
// validate a peer's chain during the TLS handshake.
//
// The default set is the Mozilla Included CA Certificate List compiled into
// the binary by github.com/breml/rootcerts, so the result never depends on
// the host's trust store, the filesystem or the network.
package anchors

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/breml/rootcerts/embedded"
)

// Anchor is the record kept for every root in a Set.
type Anchor struct {
	Subject            string
	PublicKeyAlgorithm string
	NotBefore          time.Time
	NotAfter           time.Time
}

// Set is an immutable, non-empty collection of trust anchors. It is safe
// for concurrent use once built.
type Set struct {
	pool    *x509.CertPool
	anchors []Anchor
}

var ErrEmptySet = errors.New("no trust anchors found")

var embeddedSet = sync.OnceValue(func() *Set {
	s, err := FromPEM([]byte(embedded.MozillaCACertificatesPEM()))
	if err != nil {
		panic(fmt.Sprintf("embedded root bundle: %v", err))
	}

	return s
})

// Load returns the set built from the embedded Mozilla root bundle.
func Load() *Set {
	return embeddedSet()
}

// FromPEM builds a Set from PEM encoded certificates. Blocks that are not
// certificates are skipped.
func FromPEM(bundle []byte) (*Set, error) {
	s := &Set{pool: x509.NewCertPool()}

	rest := bundle

	for {
		var block *pem.Block

		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("error parsing trust anchor %d: %w", len(s.anchors), err)
		}

		s.add(cert)
	}

	if len(s.anchors) == 0 {
		return nil, ErrEmptySet
	}

	return s, nil
}

// FromCertificates builds a Set from already parsed certificates.
func FromCertificates(certs ...*x509.Certificate) (*Set, error) {
	s := &Set{pool: x509.NewCertPool()}

	for _, c := range certs {
		if c == nil {
			continue
		}

		s.add(c)
	}

	if len(s.anchors) == 0 {
		return nil, ErrEmptySet
	}

	return s, nil
}

func (s *Set) add(cert *x509.Certificate) {
	s.pool.AddCert(cert)
	s.anchors = append(s.anchors, Anchor{
		Subject:            cert.Subject.String(),
		PublicKeyAlgorithm: cert.PublicKeyAlgorithm.String(),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
	})
}

// Pool returns the certificate pool to use as RootCAs.
// The pool must not be modified by the caller.
func (s *Set) Pool() *x509.CertPool {
	return s.pool
}

func (s *Set) Len() int {
	return len(s.anchors)
}

// Anchors returns a copy of the anchor records, in bundle order.
func (s *Set) Anchors() []Anchor {
	out := make([]Anchor, len(s.anchors))
	copy(out, s.anchors)

	return out
}
