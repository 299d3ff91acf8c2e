package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/xenos76/certpeek/internal/certdecode"
	"github.com/xenos76/certpeek/internal/target"
)

var markdownHeaders = []string{
	"#", "Label", "Subject", "Issuer", "Not Before", "Not After", "Serial", "Public Key",
}

// markdownPrinter writes the chain as a markdown table, ready to paste in
// tickets.
type markdownPrinter struct {
	w    io.Writer
	opts options
}

func (p *markdownPrinter) Header(t target.Target) error {
	_, err := fmt.Fprintf(p.w, "## %s\n\n- Targeting: `%s`\n- SNI Host: `%s`\n",
		t.IdentityName, t.DialAddress(), t.IdentityName)

	return err
}

func (p *markdownPrinter) Report(r *Report) error {
	var sb strings.Builder

	if r.Err != nil {
		fmt.Fprintf(&sb, "- Error (%s): %s\n\n", r.Stage, r.Err)
		_, err := io.WriteString(p.w, sb.String())

		return err
	}

	if res := r.Result; res != nil {
		fmt.Fprintf(&sb, "- Connected: `%s`\n", res.PeerAddr)
		fmt.Fprintf(&sb, "- Protocol: %s %s\n", res.Version, res.CipherSuite)
		fmt.Fprintf(&sb, "- Trust: %s\n", res.Trust)
	}

	sb.WriteString("\n")

	table := tablewriter.NewTable(&sb,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header(markdownHeaders)

	now := p.opts.clock.Now()

	var rows [][]string
	for _, e := range r.entries() {
		if e.err != nil {
			rows = append(rows, []string{
				strconv.Itoa(e.index),
				string(certdecode.LabelFor(e.index)),
				markdownCell("malformed: " + e.err.Error()),
				"", "", "", "", "",
			})

			continue
		}

		rec := e.record
		rows = append(rows, []string{
			strconv.Itoa(rec.Index),
			string(rec.Label),
			markdownCell(rec.Subject),
			markdownCell(rec.Issuer),
			rec.NotBefore.Format(timeLayout),
			rec.NotAfter.Format(timeLayout) + " (" + expiresIn(now, rec.NotAfter) + ")",
			rec.Serial,
			rec.PublicKeyAlgorithmName + " (" + rec.PublicKeyAlgorithm + ")",
		})
	}

	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("error building markdown table: %w", err)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("error rendering markdown table: %w", err)
	}

	sb.WriteString("\n")

	_, err := io.WriteString(p.w, sb.String())

	return err
}

// markdownCell escapes pipes so that peer supplied text stays in one cell.
func markdownCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
