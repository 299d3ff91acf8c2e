package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/xenos76/certpeek/internal/certdecode"
	"github.com/xenos76/certpeek/internal/target"
)

// plainPrinter writes line oriented output with no styling.
type plainPrinter struct {
	w    io.Writer
	opts options
}

func (p *plainPrinter) Header(t target.Target) error {
	_, err := io.WriteString(p.w, headerLines(t))
	return err
}

func (p *plainPrinter) Report(r *Report) error {
	var sb strings.Builder

	if r.Err != nil {
		fmt.Fprintf(&sb, "Error (%s): %v\n", r.Stage, r.Err)
		_, err := io.WriteString(p.w, sb.String())

		return err
	}

	if res := r.Result; res != nil {
		fmt.Fprintf(&sb, "Connected: %s\n", res.PeerAddr)
		fmt.Fprintf(&sb, "Protocol:  %s %s\n", res.Version, res.CipherSuite)
		fmt.Fprintf(&sb, "Trust:     %s\n", res.Trust)
	}

	now := p.opts.clock.Now()

	for _, e := range r.entries() {
		sb.WriteString("\n")

		if e.err != nil {
			fmt.Fprintf(&sb, "[%s]\n", certdecode.LabelFor(e.index))
			fmt.Fprintf(&sb, "  Error:       %v\n", e.err)

			continue
		}

		rec := e.record
		fmt.Fprintf(&sb, "[%s]\n", rec.Label)
		fmt.Fprintf(&sb, "  Subject:     %s\n", rec.Subject)
		fmt.Fprintf(&sb, "  Issuer:      %s\n", rec.Issuer)
		fmt.Fprintf(&sb, "  Not Before:  %s\n", rec.NotBefore.Format(timeLayout))
		fmt.Fprintf(&sb, "  Not After:   %s (%s)\n",
			rec.NotAfter.Format(timeLayout), expiresIn(now, rec.NotAfter))
		fmt.Fprintf(&sb, "  Serial:      %s\n", rec.Serial)
		fmt.Fprintf(&sb, "  Public Key:  %s (%s)\n",
			rec.PublicKeyAlgorithm, rec.PublicKeyAlgorithmName)
		fmt.Fprintf(&sb, "  SHA-256:     %s\n", rec.FingerprintSHA256)
	}

	_, err := io.WriteString(p.w, sb.String())

	return err
}

func headerLines(t target.Target) string {
	return fmt.Sprintf("Targeting: %s\nSNI Host:  %s\n", t.DialAddress(), t.IdentityName)
}

func expiresIn(now, notAfter time.Time) string {
	return humanize.RelTime(notAfter, now, "ago", "from now")
}
