package certdecode

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// not exported by cryptobyte/asn1
const (
	tagNumericString = cbasn1.Tag(18)
	tagBMPString     = cbasn1.Tag(30)
)

var publicKeyAlgorithmNames = map[string]string{
	"1.2.840.113549.1.1.1":    "RSA",
	"1.2.840.113549.1.1.10":   "RSASSA-PSS",
	"1.2.840.10045.2.1":       "ECDSA",
	"1.2.840.10040.4.1":       "DSA",
	"1.3.101.110":             "X25519",
	"1.3.101.111":             "X448",
	"1.3.101.112":             "Ed25519",
	"1.3.101.113":             "Ed448",
	"2.16.840.1.101.3.4.3.17": "ML-DSA-44",
	"2.16.840.1.101.3.4.3.18": "ML-DSA-65",
	"2.16.840.1.101.3.4.3.19": "ML-DSA-87",
}

// PublicKeyAlgorithmName maps a public key algorithm OID to a short name,
// or returns "Unknown".
func PublicKeyAlgorithmName(oid asn1.ObjectIdentifier) string {
	if name, ok := publicKeyAlgorithmNames[oid.String()]; ok {
		return name
	}

	return "Unknown"
}

// parseName reads the content of a Name SEQUENCE and renders it the way
// pkix.Name does, most specific attribute first.
func parseName(raw cryptobyte.String) (string, error) {
	var rdnSeq pkix.RDNSequence

	for !raw.Empty() {
		var set cryptobyte.String
		if !raw.ReadASN1(&set, cbasn1.SET) {
			return "", errors.New("malformed relative distinguished name")
		}

		var rdnSet pkix.RelativeDistinguishedNameSET

		for !set.Empty() {
			var atav cryptobyte.String
			if !set.ReadASN1(&atav, cbasn1.SEQUENCE) {
				return "", errors.New("malformed attribute")
			}

			var attr pkix.AttributeTypeAndValue
			if !atav.ReadASN1ObjectIdentifier(&attr.Type) {
				return "", errors.New("malformed attribute type")
			}

			var (
				elem, value cryptobyte.String
				valueTag    cbasn1.Tag
			)

			if !atav.ReadAnyASN1Element(&elem, &valueTag) {
				return "", fmt.Errorf("malformed value for attribute %s", attr.Type)
			}

			if inner := elem; !inner.ReadAnyASN1(&value, nil) {
				return "", fmt.Errorf("malformed value for attribute %s", attr.Type)
			}

			if s, ok := attributeValue(valueTag, value); ok {
				attr.Value = s
			} else {
				// pkix renders non string values as #hex of the DER element
				attr.Value = asn1.RawValue{FullBytes: append([]byte(nil), elem...)}
			}

			rdnSet = append(rdnSet, attr)
		}

		rdnSeq = append(rdnSeq, rdnSet)
	}

	return rdnSeq.String(), nil
}

// attributeValue decodes the string types found in names. It reports false
// for other types and for values that are not valid for their declared type.
func attributeValue(tag cbasn1.Tag, value []byte) (string, bool) {
	var (
		s  string
		ok bool
	)

	switch tag {
	case cbasn1.UTF8String:
		s, ok = string(value), utf8.Valid(value)
	case cbasn1.PrintableString, cbasn1.IA5String, tagNumericString:
		s, ok = string(value), isASCII(value)
	case cbasn1.T61String:
		s, ok = latin1(value), true
	case tagBMPString:
		s, ok = bmp(value)
	}

	if !ok {
		return "", false
	}

	return sanitize(s), true
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}

	return true
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}

	return string(r)
}

func bmp(b []byte) (string, bool) {
	if len(b)%2 != 0 {
		return "", false
	}

	// strip terminator
	if l := len(b); l >= 2 && b[l-1] == 0 && b[l-2] == 0 {
		b = b[:l-2]
	}

	s := make([]uint16, 0, len(b)/2)
	for len(b) > 0 {
		s = append(s, uint16(b[0])<<8+uint16(b[1]))
		b = b[2:]
	}

	return string(utf16.Decode(s)), true
}

// sanitize escapes control and other non printable characters so that a
// hostile name cannot drive the terminal.
func sanitize(s string) string {
	clean := true

	for _, r := range s {
		if !unicode.IsPrint(r) {
			clean = false
			break
		}
	}

	if clean {
		return s
	}

	var sb strings.Builder

	for _, r := range s {
		if unicode.IsPrint(r) {
			sb.WriteRune(r)
			continue
		}

		if r <= 0xff {
			fmt.Fprintf(&sb, "\\x%02x", r)
		} else {
			fmt.Fprintf(&sb, "\\u%04x", r)
		}
	}

	return sb.String()
}
