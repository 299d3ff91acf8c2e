// Package report renders inspection results for a terminal or for other
// programs.
package report

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xenos76/certpeek/internal/certdecode"
	"github.com/xenos76/certpeek/internal/handshake"
	"github.com/xenos76/certpeek/internal/target"
)

type Format string

const (
	Text     Format = "text"
	Plain    Format = "plain"
	JSON     Format = "json"
	Markdown Format = "markdown"

	DefaultExpiryWarnDays = 40

	timeLayout = "2006-01-02 15:04:05 MST"
)

var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the accepted --output values.
func Formats() []string {
	return []string{string(Text), string(Plain), string(JSON), string(Markdown)}
}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Formats(), string(f)) {
		return "", fmt.Errorf("%w: %q (want one of %s)",
			ErrUnknownFormat, s, strings.Join(Formats(), ", "))
	}

	return f, nil
}

// Report collects everything known about one inspected target. Result is
// nil when the pipeline stopped before a chain was received.
type Report struct {
	Target       target.Target
	Result       *handshake.Result
	Records      []certdecode.Record
	DecodeErrors []error
	// Stage names the step that failed when Err is set.
	Stage string
	Err   error
}

// Failed reports whether the inspection should end with a non zero exit.
func (r *Report) Failed() bool {
	return r.Err != nil || len(r.DecodeErrors) > 0
}

// entry is one chain position: either a decoded record or the reason it
// could not be decoded.
type entry struct {
	index  int
	record *certdecode.Record
	err    error
}

// entries merges records and decode errors back into chain order.
func (r *Report) entries() []entry {
	out := make([]entry, 0, len(r.Records)+len(r.DecodeErrors))

	for i := range r.Records {
		out = append(out, entry{index: r.Records[i].Index, record: &r.Records[i]})
	}

	for _, err := range r.DecodeErrors {
		idx := len(out)

		var mErr *certdecode.MalformedCertificateError
		if errors.As(err, &mErr) {
			idx = mErr.Index
		}

		out = append(out, entry{index: idx, err: err})
	}

	slices.SortStableFunc(out, func(a, b entry) int {
		return a.index - b.index
	})

	return out
}

// Printer writes reports in one output format.
type Printer interface {
	// Header announces the dial address and the asserted identity. It is
	// called before any network I/O takes place.
	Header(t target.Target) error
	Report(r *Report) error
}

type options struct {
	clock    clockwork.Clock
	color    bool
	warnDays int
}

type Option func(*options)

// WithClock sets the clock used to compute expiry distances.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithColor enables syntax highlighting of JSON output.
func WithColor(enabled bool) Option {
	return func(o *options) {
		o.color = enabled
	}
}

// WithExpiryWarnDays sets how many days before expiry a certificate is
// highlighted.
func WithExpiryWarnDays(days int) Option {
	return func(o *options) {
		o.warnDays = days
	}
}

// New returns a Printer writing the report to out. Formats that must keep
// out machine readable write the header lines to diag instead.
func New(format Format, out, diag io.Writer, opts ...Option) (Printer, error) {
	o := options{
		clock:    clockwork.NewRealClock(),
		warnDays: DefaultExpiryWarnDays,
	}

	for _, opt := range opts {
		opt(&o)
	}

	switch format {
	case Text:
		return &textPrinter{w: out, opts: o}, nil
	case Plain:
		return &plainPrinter{w: out, opts: o}, nil
	case JSON:
		return &jsonPrinter{w: out, diag: diag, opts: o}, nil
	case Markdown:
		return &markdownPrinter{w: out, opts: o}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func daysLeft(now, notAfter time.Time) float64 {
	return notAfter.Sub(now).Hours() / 24
}
