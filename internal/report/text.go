package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/xenos76/certpeek/internal/certdecode"
	"github.com/xenos76/certpeek/internal/style"
	"github.com/xenos76/certpeek/internal/target"
)

// textPrinter renders styled tables, one per chain entry.
type textPrinter struct {
	w    io.Writer
	opts options
}

func (p *textPrinter) Header(t target.Target) error {
	sl := style.CertKeyP4.Bold(true)
	sv := style.CertValue.Bold(false)

	var sb strings.Builder

	fmt.Fprintln(&sb)
	fmt.Fprintln(&sb, style.LgSprintf(style.Cmd, "Certpeek"))
	fmt.Fprintln(&sb)
	fmt.Fprintln(&sb, style.LgSprintf(sl, "Targeting: %v", sv.Render(t.DialAddress())))
	fmt.Fprintln(&sb, style.LgSprintf(sl, "SNI Host: %v", sv.Render(t.IdentityName)))

	_, err := io.WriteString(p.w, sb.String())

	return err
}

func (p *textPrinter) Report(r *Report) error {
	ks := style.ItemKey.PaddingBottom(0).PaddingTop(1).PaddingLeft(1)
	sl := style.CertKeyP4.Render
	sv := style.CertValue.Render

	var sb strings.Builder

	if r.Err != nil {
		fmt.Fprintln(&sb, style.LgSprintf(ks, "Error"))
		fmt.Fprintln(&sb, style.LgSprintf(
			style.Error.PaddingLeft(4).PaddingTop(1),
			"%s: %v", r.Stage, r.Err,
		))
		_, err := io.WriteString(p.w, sb.String())

		return err
	}

	if res := r.Result; res != nil {
		fmt.Fprintln(&sb, style.LgSprintf(ks, "Connection"))

		t := table.New().Border(style.LGDefBorder)
		t.Row(sl("Peer"), sv(res.PeerAddr))
		t.Row(sl("TLS Version"), sv(res.Version))
		t.Row(sl("Cipher Suite"), sv(res.CipherSuite))
		t.Row(sl("Trust"), style.TrustStyle(res.Trust.Trusted, res.Trust.String()))
		t.Row(sl("Verified After Handshake"), style.BoolStyle(res.Trust.Deferred))
		t.Row(sl("Handshake"), style.CertValueNotice.Render(res.Elapsed.String()))
		fmt.Fprintln(&sb, t.Render())
	}

	if len(r.Records)+len(r.DecodeErrors) > 0 {
		fmt.Fprintln(&sb, style.LgSprintf(ks, "Certificates"))
	}

	for _, e := range r.entries() {
		fmt.Fprintln(&sb, p.entryTable(e))
	}

	_, err := io.WriteString(p.w, sb.String())

	return err
}

func (p *textPrinter) entryTable(e entry) string {
	sl := style.CertKeyP4.Render
	sv := style.CertValue.Render
	svn := style.CertValueNotice.Render

	label := certdecode.LabelFor(e.index)
	header := style.LgSprintf(
		style.LabelStyle(label == certdecode.Leaf).PaddingLeft(4),
		"[%s] Certificate %d", label, e.index,
	)

	t := table.New().Border(style.LGDefBorder).Headers(header)

	if e.err != nil {
		t.Row(sl("Error"), style.Error.Render(e.err.Error()))
		return t.Render()
	}

	rec := e.record
	left := daysLeft(p.opts.clock.Now(), rec.NotAfter)
	expStyle := style.ExpiryStyle(left, p.opts.warnDays).Render

	t.Row(sl("Subject"), sv(rec.Subject))
	t.Row(sl("Issuer"), sv(rec.Issuer))
	t.Row(sl("NotBefore"), sv(rec.NotBefore.Format(timeLayout)))
	t.Row(sl("NotAfter"), expStyle(rec.NotAfter.Format(timeLayout)))
	t.Row(sl("Expiration"), expStyle(expiresIn(p.opts.clock.Now(), rec.NotAfter)))
	t.Row(sl("SerialNumber"), sv(rec.Serial))
	t.Row(sl("PublicKeyAlgorithm"), svn(rec.PublicKeyAlgorithmName+" ("+rec.PublicKeyAlgorithm+")"))
	t.Row(sl("Fingerprint SHA-256"), sv(rec.FingerprintSHA256))

	return t.Render()
}
