package handshake

import (
	"errors"
	"fmt"
)

// ErrNoCertificates is returned when the handshake completed but the peer
// presented an empty chain.
var ErrNoCertificates = errors.New("peer presented no certificates")

// NetworkError reports a transport failure before the TLS handshake:
// refused connection, timeout, DNS or routing failure.
type NetworkError struct {
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TLSError reports a failed handshake: untrusted chain, identity mismatch
// or protocol negotiation failure.
type TLSError struct {
	Identity string
	Err      error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("TLS handshake with %s failed: %v", e.Identity, e.Err)
}

func (e *TLSError) Unwrap() error {
	return e.Err
}
