// Package certdecode extracts display fields from DER certificates received
// from a remote peer.
//
// Input is treated as hostile: the structure is walked with
// golang.org/x/crypto/cryptobyte, every length is checked against the
// remaining buffer and nesting depth is fixed by the code, not by the data.
// No signature, extension or policy checks are performed; the decoder
// reports what the certificate says, including inconsistent validity
// windows.
package certdecode

import (
	"crypto/sha256"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

type Label string

const (
	Leaf         Label = "Leaf"
	Intermediate Label = "Intermediate"
)

// Record is the decoded view of one chain entry.
type Record struct {
	Index                  int       `json:"index"`
	Label                  Label     `json:"label"`
	Subject                string    `json:"subject"`
	Issuer                 string    `json:"issuer"`
	NotBefore              time.Time `json:"notBefore"`
	NotAfter               time.Time `json:"notAfter"`
	Serial                 string    `json:"serial"`
	PublicKeyAlgorithm     string    `json:"publicKeyAlgorithm"`
	PublicKeyAlgorithmName string    `json:"publicKeyAlgorithmName"`
	FingerprintSHA256      string    `json:"fingerprintSHA256"`
}

// MalformedCertificateError reports a chain entry that is not a well formed
// DER certificate.
type MalformedCertificateError struct {
	Index int
	Err   error
}

func (e *MalformedCertificateError) Error() string {
	return fmt.Sprintf("certificate %d is malformed: %v", e.Index, e.Err)
}

func (e *MalformedCertificateError) Unwrap() error {
	return e.Err
}

var (
	errTrailingData = errors.New("trailing data after certificate")
	errEmpty        = errors.New("empty input")
)

// LabelFor returns Leaf for index 0 and Intermediate otherwise.
func LabelFor(index int) Label {
	if index == 0 {
		return Leaf
	}

	return Intermediate
}

// Decode decodes every entry of chain. Records come back in chain order for
// the entries that decoded; every other entry yields one
// *MalformedCertificateError. A bad entry never stops the following ones.
func Decode(chain [][]byte) ([]Record, []error) {
	records := make([]Record, 0, len(chain))

	var errs []error

	for i, der := range chain {
		r, err := DecodeOne(i, der)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		records = append(records, r)
	}

	return records, errs
}

// DecodeOne decodes the certificate found at position index of a chain.
func DecodeOne(index int, der []byte) (Record, error) {
	r, err := parse(der)
	if err != nil {
		return Record{}, &MalformedCertificateError{Index: index, Err: err}
	}

	sum := sha256.Sum256(der)

	r.Index = index
	r.Label = LabelFor(index)
	r.FingerprintSHA256 = hex.EncodeToString(sum[:])

	return r, nil
}

func parse(der []byte) (Record, error) {
	var r Record

	if len(der) == 0 {
		return r, errEmpty
	}

	input := cryptobyte.String(der)

	var cert cryptobyte.String
	if !input.ReadASN1(&cert, cbasn1.SEQUENCE) {
		return r, errors.New("malformed certificate")
	}

	if !input.Empty() {
		return r, errTrailingData
	}

	var tbs cryptobyte.String
	if !cert.ReadASN1(&tbs, cbasn1.SEQUENCE) {
		return r, errors.New("malformed tbs certificate")
	}

	if !cert.SkipASN1(cbasn1.SEQUENCE) {
		return r, errors.New("malformed certificate signature algorithm")
	}

	if !cert.SkipASN1(cbasn1.BIT_STRING) {
		return r, errors.New("malformed signature value")
	}

	if !cert.Empty() {
		return r, errors.New("trailing data after signature value")
	}

	if !tbs.SkipOptionalASN1(cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return r, errors.New("malformed version")
	}

	var serial cryptobyte.String
	if !tbs.ReadASN1(&serial, cbasn1.INTEGER) || len(serial) == 0 {
		return r, errors.New("malformed serial number")
	}

	r.Serial = formatSerial(serial)

	if !tbs.SkipASN1(cbasn1.SEQUENCE) {
		return r, errors.New("malformed signature algorithm identifier")
	}

	var issuer cryptobyte.String
	if !tbs.ReadASN1(&issuer, cbasn1.SEQUENCE) {
		return r, errors.New("malformed issuer")
	}

	issuerName, err := parseName(issuer)
	if err != nil {
		return r, fmt.Errorf("issuer: %w", err)
	}

	r.Issuer = issuerName

	var validity cryptobyte.String
	if !tbs.ReadASN1(&validity, cbasn1.SEQUENCE) {
		return r, errors.New("malformed validity")
	}

	if r.NotBefore, err = parseTime(&validity); err != nil {
		return r, fmt.Errorf("not before: %w", err)
	}

	if r.NotAfter, err = parseTime(&validity); err != nil {
		return r, fmt.Errorf("not after: %w", err)
	}

	var subject cryptobyte.String
	if !tbs.ReadASN1(&subject, cbasn1.SEQUENCE) {
		return r, errors.New("malformed subject")
	}

	subjectName, err := parseName(subject)
	if err != nil {
		return r, fmt.Errorf("subject: %w", err)
	}

	r.Subject = subjectName

	var spki, algID cryptobyte.String
	if !tbs.ReadASN1(&spki, cbasn1.SEQUENCE) ||
		!spki.ReadASN1(&algID, cbasn1.SEQUENCE) {
		return r, errors.New("malformed subject public key info")
	}

	var oid asn1.ObjectIdentifier
	if !algID.ReadASN1ObjectIdentifier(&oid) {
		return r, errors.New("malformed public key algorithm identifier")
	}

	r.PublicKeyAlgorithm = oid.String()
	r.PublicKeyAlgorithmName = PublicKeyAlgorithmName(oid)

	return r, nil
}

// formatSerial renders the integer content octets as colon separated hex.
func formatSerial(b []byte) string {
	var sb strings.Builder

	sb.Grow(len(b) * 3)

	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}

		fmt.Fprintf(&sb, "%02x", c)
	}

	return sb.String()
}

func parseTime(der *cryptobyte.String) (time.Time, error) {
	var t time.Time

	switch {
	case der.PeekASN1Tag(cbasn1.UTCTime):
		if !der.ReadASN1UTCTime(&t) {
			return t, errors.New("malformed UTCTime")
		}
	case der.PeekASN1Tag(cbasn1.GeneralizedTime):
		if !der.ReadASN1GeneralizedTime(&t) {
			return t, errors.New("malformed GeneralizedTime")
		}
	default:
		return t, errors.New("unsupported time format")
	}

	return t.UTC(), nil
}
