package certdecode

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/xenos76/certpeek/internal/testpki"
)

func expectedSerial(n *big.Int) string {
	b := n.Bytes()
	if len(b) == 0 || b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}

	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = hex.EncodeToString([]byte{c})
	}

	return strings.Join(parts, ":")
}

func TestDecode_ValidChain(t *testing.T) {
	pki := testpki.NewChain(t, "example.test")

	records, errs := Decode([][]byte{pki.Leaf.DER, pki.Intermediate.DER})
	require.Empty(t, errs)
	require.Len(t, records, 2)

	require.Equal(t, Leaf, records[0].Label)
	require.Equal(t, Intermediate, records[1].Label)
	require.Equal(t, records[0].Issuer, records[1].Subject, "leaf is issued by the intermediate")

	for i, issued := range []*testpki.Issued{pki.Leaf, pki.Intermediate} {
		r := records[i]

		require.Equal(t, i, r.Index)
		require.Equal(t, issued.Cert.Subject.String(), r.Subject)
		require.Equal(t, issued.Cert.Issuer.String(), r.Issuer)
		require.True(t, issued.Cert.NotBefore.Equal(r.NotBefore), "NotBefore")
		require.True(t, issued.Cert.NotAfter.Equal(r.NotAfter), "NotAfter")
		require.Equal(t, time.UTC, r.NotAfter.Location())
		require.Equal(t, expectedSerial(issued.Cert.SerialNumber), r.Serial)
		require.Equal(t, "1.2.840.10045.2.1", r.PublicKeyAlgorithm)
		require.Equal(t, "ECDSA", r.PublicKeyAlgorithmName)
		require.Len(t, r.FingerprintSHA256, 64)
	}

	require.Equal(t, "CN=Testing Leaf", records[0].Subject)
	require.Equal(t, "CN=Testing Intermediate CA,O=Certpeek Test", records[0].Issuer)
}

func TestDecode_LabelsFollowIndex(t *testing.T) {
	pki := testpki.NewChain(t, "example.test")

	// the decoder labels by position, not by what the certificate is
	chain := [][]byte{pki.Root.DER, pki.Leaf.DER, pki.Intermediate.DER, pki.Leaf.DER}

	records, errs := Decode(chain)
	require.Empty(t, errs)
	require.Len(t, records, len(chain))

	for i, r := range records {
		require.Equal(t, i == 0, r.Label == Leaf, "index %d", i)
		require.Equal(t, LabelFor(i), r.Label)
	}

	require.Equal(t, records[1], withIndex(records[3], 1), "duplicates are kept")
}

func withIndex(r Record, i int) Record {
	r.Index = i
	r.Label = LabelFor(i)

	return r
}

func TestDecode_PartialCorruption(t *testing.T) {
	pki := testpki.NewChain(t, "example.test")

	chain := [][]byte{pki.Leaf.DER, []byte("definitely not DER"), pki.Intermediate.DER}

	records, errs := Decode(chain)
	require.Len(t, records, 2)
	require.Len(t, errs, 1)

	require.Equal(t, 0, records[0].Index)
	require.Equal(t, Leaf, records[0].Label)
	require.Equal(t, 2, records[1].Index)
	require.Equal(t, Intermediate, records[1].Label)

	var malformed *MalformedCertificateError

	require.True(t, errors.As(errs[0], &malformed))
	require.Equal(t, 1, malformed.Index)
	require.EqualError(t, errs[0], "certificate 1 is malformed: malformed certificate")
}

func TestDecode_AllMalformed(t *testing.T) {
	records, errs := Decode([][]byte{nil, {0x30, 0x00}})
	require.Empty(t, records)
	require.Len(t, errs, 2)

	require.EqualError(t, errs[0], "certificate 0 is malformed: empty input")
	require.EqualError(t, errs[1], "certificate 1 is malformed: malformed tbs certificate")
}

func TestDecode_Idempotent(t *testing.T) {
	pki := testpki.NewChain(t, "example.test")
	chain := [][]byte{pki.Leaf.DER, {0x01}, pki.Intermediate.DER, pki.Root.DER}

	first, firstErrs := Decode(chain)
	second, secondErrs := Decode(chain)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Decode is not idempotent (-first +second):\n%s", diff)
	}

	require.Equal(t, len(firstErrs), len(secondErrs))

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	require.Equal(t, firstJSON, secondJSON)
	require.Equal(t, [][]byte{pki.Leaf.DER, {0x01}, pki.Intermediate.DER, pki.Root.DER}, chain, "input untouched")
}

func TestDecodeOne_Malformed(t *testing.T) {
	pki := testpki.NewChain(t, "example.test")
	der := pki.Leaf.DER

	tests := []struct {
		desc      string
		input     []byte
		expectMsg string
	}{
		{
			desc:      "empty",
			input:     []byte{},
			expectMsg: "empty input",
		},
		{
			desc:      "truncated",
			input:     der[:len(der)/2],
			expectMsg: "malformed certificate",
		},
		{
			desc:      "trailing data",
			input:     append(append([]byte{}, der...), 0x00),
			expectMsg: "trailing data after certificate",
		},
		{
			desc:      "wrong outer tag",
			input:     append([]byte{0x31}, der[1:]...),
			expectMsg: "malformed certificate",
		},
		{
			desc:      "length larger than input",
			input:     []byte{0x30, 0x84, 0x7f, 0xff, 0xff, 0xff, 0x30, 0x00},
			expectMsg: "malformed certificate",
		},
		{
			desc:      "indefinite length",
			input:     []byte{0x30, 0x80, 0x30, 0x00, 0x00, 0x00},
			expectMsg: "malformed certificate",
		},
		{
			desc:      "empty serial",
			input:     []byte{0x30, 0x09, 0x30, 0x02, 0x02, 0x00, 0x30, 0x00, 0x03, 0x01, 0x00},
			expectMsg: "malformed serial number",
		},
		{
			desc: "missing validity",
			input: []byte{
				0x30, 0x10,
				0x30, 0x09, 0x02, 0x01, 0x01, 0x30, 0x00, 0x30, 0x00, 0x30, 0x00,
				0x30, 0x00, 0x03, 0x01, 0x00,
			},
			expectMsg: "not before: unsupported time format",
		},
		{
			desc:      "tbs without signature",
			input:     certificateParts(t, der, 1),
			expectMsg: "malformed certificate signature algorithm",
		},
		{
			desc:      "signature value missing",
			input:     certificateParts(t, der, 2),
			expectMsg: "malformed signature value",
		},
		{
			desc:      "extra element after signature value",
			input:     certificateParts(t, der, 3, 0x05, 0x00),
			expectMsg: "trailing data after signature value",
		},
		{
			desc:      "pem instead of der",
			input:     pki.Leaf.PEM,
			expectMsg: "malformed certificate",
		},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.desc, func(t *testing.T) {
			t.Parallel()

			r, err := DecodeOne(3, tt.input)
			require.Equal(t, Record{}, r)

			var malformed *MalformedCertificateError

			require.True(t, errors.As(err, &malformed))
			require.Equal(t, 3, malformed.Index)
			require.ErrorContains(t, err, tt.expectMsg)
		})
	}
}

// certificateParts re-wraps the first n elements of the certificate in der
// (tbsCertificate, signatureAlgorithm, signatureValue) followed by extra in
// a new SEQUENCE.
func certificateParts(t *testing.T, der []byte, n int, extra ...byte) []byte {
	t.Helper()

	input := cryptobyte.String(der)

	var cert cryptobyte.String
	require.True(t, input.ReadASN1(&cert, cbasn1.SEQUENCE))

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for range n {
			var elem cryptobyte.String
			require.True(t, cert.ReadAnyASN1Element(&elem, nil))
			b.AddBytes(elem)
		}

		b.AddBytes(extra)
	})

	out, err := b.Bytes()
	require.NoError(t, err)

	return out
}

func TestDecodeOne_InconsistentValidity(t *testing.T) {
	notAfter := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	notBefore := time.Date(2060, 6, 1, 12, 30, 0, 0, time.UTC)

	issued := testpki.Issue(t, testpki.Template{
		CN:        "Backwards",
		NotBefore: notBefore,
		NotAfter:  notAfter,
	}, nil)

	r, err := DecodeOne(0, issued.DER)
	require.NoError(t, err)

	// reported as encoded, GeneralizedTime for 2060 and UTCTime for 2020
	require.True(t, r.NotBefore.Equal(notBefore))
	require.True(t, r.NotAfter.Equal(notAfter))
	require.True(t, r.NotBefore.After(r.NotAfter))
	require.Equal(t, "CN=Backwards", r.Subject)
	require.Equal(t, r.Subject, r.Issuer)
}

func TestDecodeOne_Ed25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(0x7f01),
		Subject:      pkix.Name{CommonName: "ed25519.example.test", Country: []string{"CH"}},
		NotBefore:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, pub, priv)
	require.NoError(t, err)

	r, err := DecodeOne(1, der)
	require.NoError(t, err)
	require.Equal(t, Intermediate, r.Label)
	require.Equal(t, "1.3.101.112", r.PublicKeyAlgorithm)
	require.Equal(t, "Ed25519", r.PublicKeyAlgorithmName)
	require.Equal(t, "7f:01", r.Serial)
	require.Equal(t, "CN=ed25519.example.test,C=CH", r.Subject)
}

func TestDecodeOne_HostileNames(t *testing.T) {
	issued := testpki.Issue(t, testpki.Template{
		CN:  "evil\x1b[31mred",
		Org: "Org, with \"specials\"",
	}, nil)

	r, err := DecodeOne(0, issued.DER)
	require.NoError(t, err)
	require.NotContains(t, r.Subject, "\x1b")
	require.Contains(t, r.Subject, `x1b[31mred`)
	require.Contains(t, r.Subject, `O=Org\, with \"specials\"`)
}

func TestAttributeValue(t *testing.T) {
	tests := []struct {
		desc     string
		tag      cbasn1.Tag
		value    []byte
		expect   string
		expectOk bool
	}{
		{"utf8", cbasn1.UTF8String, []byte("Zürich"), "Zürich", true},
		{"invalid utf8", cbasn1.UTF8String, []byte{0xff, 0xfe}, "", false},
		{"printable", cbasn1.PrintableString, []byte("Example Org"), "Example Org", true},
		{"printable with high bytes", cbasn1.PrintableString, []byte{'a', 0xe9}, "", false},
		{"ia5", cbasn1.IA5String, []byte("ops@example.test"), "ops@example.test", true},
		{"numeric", tagNumericString, []byte("0042"), "0042", true},
		{"t61 latin1", cbasn1.T61String, []byte{'c', 'a', 'f', 0xe9}, "café", true},
		{"bmp", tagBMPString, []byte{0x00, 'A', 0x00, 'B'}, "AB", true},
		{"bmp with terminator", tagBMPString, []byte{0x00, 'A', 0x00, 0x00}, "A", true},
		{"bmp odd length", tagBMPString, []byte{0x00, 'A', 0x00}, "", false},
		{"octet string", cbasn1.OCTET_STRING, []byte{0xde, 0xad}, "", false},
		{"control characters", cbasn1.UTF8String, []byte("a\tb\x00"), `a\x09b\x00`, true},
		{"line separator", cbasn1.UTF8String, []byte("a\u2028b"), `a\u2028b`, true},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.desc, func(t *testing.T) {
			t.Parallel()

			got, ok := attributeValue(tt.tag, tt.value)
			require.Equal(t, tt.expectOk, ok)
			require.Equal(t, tt.expect, got)
		})
	}
}

func TestParseName(t *testing.T) {
	cn := asn1.ObjectIdentifier{2, 5, 4, 3}

	tests := []struct {
		desc   string
		tag    cbasn1.Tag
		value  []byte
		expect string
	}{
		{"printable", cbasn1.PrintableString, []byte("example.test"), "CN=example.test"},
		{"leading hash in a string", cbasn1.UTF8String, []byte("#dead"), `CN=\#dead`},
		{"octet string", cbasn1.OCTET_STRING, []byte{0xde, 0xad}, "CN=#0402dead"},
		{"invalid utf8", cbasn1.UTF8String, []byte{0xff}, "CN=#0c01ff"},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.desc, func(t *testing.T) {
			t.Parallel()

			var b cryptobyte.Builder
			b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(cn)
					b.AddASN1(tt.tag, func(b *cryptobyte.Builder) {
						b.AddBytes(tt.value)
					})
				})
			})

			raw, err := b.Bytes()
			require.NoError(t, err)

			got, err := parseName(cryptobyte.String(raw))
			require.NoError(t, err)
			require.Equal(t, tt.expect, got)
		})
	}
}

func TestPublicKeyAlgorithmName(t *testing.T) {
	require.Equal(t, "RSA", PublicKeyAlgorithmName(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}))
	require.Equal(t, "ML-DSA-65", PublicKeyAlgorithmName(asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 18}))
	require.Equal(t, "Unknown", PublicKeyAlgorithmName(asn1.ObjectIdentifier{1, 2, 3}))
}

func FuzzDecodeOne(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x30, 0x00})
	f.Add([]byte{0x30, 0x82, 0x01})
	f.Add([]byte{0x30, 0x80, 0x30, 0x80, 0x00, 0x00})

	f.Fuzz(func(t *testing.T, der []byte) {
		r, err := DecodeOne(0, der)
		if err != nil {
			require.Equal(t, Record{}, r)
			return
		}

		require.Equal(t, Leaf, r.Label)
		require.NotEmpty(t, r.Serial)
	})
}
