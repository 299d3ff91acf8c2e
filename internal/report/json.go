package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xenos76/certpeek/internal/certdecode"
	"github.com/xenos76/certpeek/internal/style"
	"github.com/xenos76/certpeek/internal/target"
)

type jsonTrust struct {
	Trusted  bool   `json:"trusted"`
	Deferred bool   `json:"deferred,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type jsonConnection struct {
	PeerAddress string    `json:"peerAddress"`
	TLSVersion  string    `json:"tlsVersion"`
	CipherSuite string    `json:"cipherSuite"`
	Trust       jsonTrust `json:"trust"`
	ElapsedMs   int64     `json:"elapsedMs"`
}

type jsonDocument struct {
	DialAddress  string              `json:"dialAddress"`
	Identity     string              `json:"identity"`
	Connection   *jsonConnection     `json:"connection,omitempty"`
	Certificates []certdecode.Record `json:"certificates"`
	Errors       []string            `json:"errors,omitempty"`
	Stage        string              `json:"stage,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// jsonPrinter writes one indented JSON document per report. Header lines
// go to diag so that out stays parseable.
type jsonPrinter struct {
	w    io.Writer
	diag io.Writer
	opts options
}

func (p *jsonPrinter) Header(t target.Target) error {
	if p.diag == nil {
		return nil
	}

	_, err := io.WriteString(p.diag, headerLines(t))

	return err
}

func (p *jsonPrinter) Report(r *Report) error {
	doc := newJSONDocument(r)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}

	out := string(data) + "\n"
	if p.opts.color {
		out = style.CodeSyntaxHighlight("json", out)
	}

	_, err = io.WriteString(p.w, out)

	return err
}

func newJSONDocument(r *Report) jsonDocument {
	doc := jsonDocument{
		DialAddress:  r.Target.DialAddress(),
		Identity:     r.Target.IdentityName,
		Certificates: []certdecode.Record{},
	}

	if r.Err != nil {
		doc.Stage = r.Stage
		doc.Error = r.Err.Error()

		return doc
	}

	if res := r.Result; res != nil {
		doc.Connection = &jsonConnection{
			PeerAddress: res.PeerAddr,
			TLSVersion:  res.Version,
			CipherSuite: res.CipherSuite,
			Trust: jsonTrust{
				Trusted:  res.Trust.Trusted,
				Deferred: res.Trust.Deferred,
				Reason:   res.Trust.Reason,
			},
			ElapsedMs: res.Elapsed.Milliseconds(),
		}
	}

	if len(r.Records) > 0 {
		doc.Certificates = r.Records
	}

	for _, err := range r.DecodeErrors {
		doc.Errors = append(doc.Errors, err.Error())
	}

	return doc
}
