// Package target turns user input into the pair of names used for a
// connection: the address to dial and the identity to assert during the
// TLS handshake.
package target

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

const DefaultPort = 443

// dnsLength enforces the 63 octet label and 253 octet name limits.
var dnsLength = idna.New(idna.VerifyDNSLength(true))

var (
	ErrInvalidIdentity = errors.New("invalid identity name")
	ErrInvalidAddress  = errors.New("invalid dial address")
	ErrInvalidPort     = errors.New("invalid port")
)

// Target keeps where to connect apart from what identity to assert.
// DialHost is the override when one was supplied, the identity otherwise.
type Target struct {
	DialHost     string
	DialPort     int
	IdentityName string
}

// Resolve builds a Target. An empty addressOverride means no override.
// Validation is purely syntactic: nothing is looked up.
func Resolve(identity, addressOverride string, port int) (Target, error) {
	if err := ValidateIdentity(identity); err != nil {
		return Target{}, err
	}

	if port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	dialHost := identity

	if addressOverride != "" {
		h, err := normalizeOverride(addressOverride)
		if err != nil {
			return Target{}, err
		}

		dialHost = h
	}

	return Target{
		DialHost:     dialHost,
		DialPort:     port,
		IdentityName: identity,
	}, nil
}

// DialAddress returns the host:port form of the dial target.
func (t Target) DialAddress() string {
	return net.JoinHostPort(t.DialHost, strconv.Itoa(t.DialPort))
}

// Overridden reports whether the dial host differs from the identity.
func (t Target) Overridden() bool {
	return t.DialHost != t.IdentityName
}

// IdentityIsIP reports whether the asserted identity is an IP literal, in
// which case no SNI extension is sent.
func (t Target) IdentityIsIP() bool {
	_, err := netip.ParseAddr(t.IdentityName)
	return err == nil
}

func (t Target) String() string {
	return fmt.Sprintf("%s (identity %s)", t.DialAddress(), t.IdentityName)
}

// ValidateIdentity checks that name can be asserted as a handshake identity:
// an IP literal or a DNS name without wildcards.
func ValidateIdentity(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentity)
	}

	if _, err := netip.ParseAddr(name); err == nil {
		if strings.Contains(name, "%") {
			return fmt.Errorf("%w: %q: IPv6 zones cannot be asserted", ErrInvalidIdentity, name)
		}

		return nil
	}

	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return nonASCIIError(name)
		}
	}

	if err := validateDNSName(name); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidIdentity, name, err)
	}

	return nil
}

func nonASCIIError(name string) error {
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidIdentity, name, err)
	}

	return fmt.Errorf("%w: %q: use the ASCII form %q", ErrInvalidIdentity, name, ascii)
}

func validateDNSName(name string) error {
	// one trailing dot marks a fully qualified name
	name = strings.TrimSuffix(name, ".")

	if name == "" {
		return errors.New("no labels")
	}

	labels := strings.Split(name, ".")

	for _, label := range labels {
		if err := validateLabel(label); err != nil {
			return err
		}
	}

	// a dotted all-numeric name would be mistaken for an IPv4 address
	if allDigits(labels[len(labels)-1]) {
		return errors.New("last label is numeric")
	}

	if _, err := dnsLength.ToASCII(name); err != nil {
		return fmt.Errorf("exceeds DNS length limits: %w", err)
	}

	return nil
}

func validateLabel(label string) error {
	switch {
	case label == "":
		return errors.New("empty label")
	case label[0] == '-' || label[len(label)-1] == '-':
		return fmt.Errorf("label %q starts or ends with a hyphen", label)
	}

	for i := 0; i < len(label); i++ {
		c := label[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_':
		case c == '*':
			return errors.New("wildcards cannot be asserted")
		default:
			return fmt.Errorf("label %q contains %q", label, c)
		}
	}

	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

func normalizeOverride(addr string) (string, error) {
	addr = strings.TrimSpace(addr)

	if strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]") {
		inner := addr[1 : len(addr)-1]
		if _, err := netip.ParseAddr(inner); err != nil {
			return "", fmt.Errorf("%w: %q: bracketed value is not an IP address", ErrInvalidAddress, addr)
		}

		return inner, nil
	}

	if addr == "" {
		return "", fmt.Errorf("%w: blank override", ErrInvalidAddress)
	}

	if strings.ContainsAny(addr, " /[]") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	// host:port is not accepted, the port has its own setting
	if _, err := netip.ParseAddr(addr); err != nil && strings.Contains(addr, ":") {
		return "", fmt.Errorf("%w: %q: set the port separately", ErrInvalidAddress, addr)
	}

	return addr, nil
}
