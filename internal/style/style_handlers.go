package style

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

func LgSprintf(style lipgloss.Style, pattern string, a ...any) string {
	str := fmt.Sprintf(pattern, a...)
	out := style.Render(str)

	return out
}

func BoolStyle(b bool) string {
	if b {
		return LgSprintf(BoolTrue, "true")
	}

	return LgSprintf(BoolFalse, "false")
}

// LabelStyle picks the style for a chain position label.
func LabelStyle(leaf bool) lipgloss.Style {
	if leaf {
		return LeafLabel
	}

	return IntermediateLabel
}

// TrustStyle renders a trust verdict.
func TrustStyle(trusted bool, verdict string) string {
	if trusted {
		return Trusted.Render(verdict)
	}

	return Untrusted.Render(verdict)
}

// ExpiryStyle picks the style for a validity end date given the days left.
func ExpiryStyle(daysLeft float64, warnDays int) lipgloss.Style {
	switch {
	case daysLeft <= 0:
		return Crit
	case daysLeft < float64(warnDays):
		return Warn
	default:
		return CertValue
	}
}

func CodeSyntaxHighlight(lang, code string) string {
	st := styles.Get(chromaDefStyle)
	if st == nil {
		st = styles.Fallback
	}

	fmttr := formatters.TTY16m
	if fmttr == nil {
		fmttr = formatters.Fallback
	}

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}

	if lexer == nil {
		lexer = lexers.Fallback
	}

	lexer = chroma.Coalesce(lexer)

	iter, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := fmttr.Format(&buf, st, iter); err != nil {
		return code
	}

	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}

	return out
}
