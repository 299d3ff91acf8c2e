package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gookit/goutil/dump"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/valyala/bytebufferpool"
	"github.com/xenos76/certpeek/internal/anchors"
	"github.com/xenos76/certpeek/internal/certdecode"
	"github.com/xenos76/certpeek/internal/handshake"
	"github.com/xenos76/certpeek/internal/report"
	"github.com/xenos76/certpeek/internal/target"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var loadAnchors = anchors.Load

// Stage names used in diagnostics.
const (
	stageResolve = "resolve"
	stageNetwork = "network"
	stageTLS     = "tls"
	stageChain   = "chain"
	stageDecode  = "decode"
)

// StageError records which step of an inspection failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageOf(err error) string {
	var (
		netErr *handshake.NetworkError
		tlsErr *handshake.TLSError
		decErr *certdecode.MalformedCertificateError
	)

	switch {
	case errors.Is(err, target.ErrInvalidIdentity),
		errors.Is(err, target.ErrInvalidPort),
		errors.Is(err, target.ErrInvalidAddress):
		return stageResolve
	case errors.As(err, &netErr):
		return stageNetwork
	case errors.As(err, &tlsErr):
		return stageTLS
	case errors.Is(err, handshake.ErrNoCertificates):
		return stageChain
	case errors.As(err, &decErr):
		return stageDecode
	default:
		return stageNetwork
	}
}

// diagnostic renders the single line printed on stderr before exiting.
func diagnostic(err error) string {
	// Only a bare StageError gets the stage prefix; batch summaries
	// already name the first failure.
	if se, ok := err.(*StageError); ok { //nolint:errorlint
		return fmt.Sprintf("certpeek: %s failed: %v", se.Stage, se.Err)
	}

	return fmt.Sprintf("certpeek: %v", err)
}

// inspector runs the resolve, connect and decode pipeline for one target.
type inspector struct {
	anchors *anchors.Set
	cfg     *CertpeekConfig
	log     logrus.FieldLogger
	debug   io.Writer
}

func (in *inspector) handshakeOptions(tc TargetConfig) []handshake.Option {
	return []handshake.Option{
		handshake.WithTimeout(in.cfg.Timeout),
		handshake.WithLogger(in.log),
		handshake.WithDeferredVerification(in.cfg.Insecure),
		handshake.WithProxyProtocol(tc.ProxyProtocol),
	}
}

// inspect resolves tc, announces it through p and connects. The returned
// report carries the failing stage when the pipeline stopped early.
func (in *inspector) inspect(ctx context.Context, tc TargetConfig, p report.Printer) (*report.Report, error) {
	log := in.log.WithField("host", tc.Host)

	t, err := target.Resolve(tc.Host, tc.IP, tc.Port)
	if err != nil {
		dial := tc.IP
		if dial == "" {
			dial = tc.Host
		}

		return &report.Report{
			Target: target.Target{DialHost: dial, DialPort: tc.Port, IdentityName: tc.Host},
			Stage:  stageResolve,
			Err:    err,
		}, nil
	}

	if err := p.Header(t); err != nil {
		return nil, fmt.Errorf("error writing output: %w", err)
	}

	log = log.WithField("dial", t.DialAddress())
	log.Debug("target resolved")

	if in.debug != nil {
		dump.Fprint(in.debug, t)
	}

	res, err := handshake.Connect(ctx, t, in.anchors, in.handshakeOptions(tc)...)
	if err != nil {
		stage := stageOf(err)
		log.WithField("stage", stage).WithError(err).Debug("inspection failed")

		return &report.Report{Target: t, Stage: stage, Err: err}, nil
	}

	if in.debug != nil {
		dump.Fprint(in.debug, summarize(res))
	}

	records, decodeErrs := certdecode.Decode(res.Chain)
	for _, dErr := range decodeErrs {
		log.WithField("stage", stageDecode).WithError(dErr).Debug("chain entry not decoded")
	}

	return &report.Report{
		Target:       t,
		Result:       res,
		Records:      records,
		DecodeErrors: decodeErrs,
	}, nil
}

// resultSummary is the debug view of a handshake result. The raw chain is
// reduced to its length.
type resultSummary struct {
	PeerAddr     string
	Version      string
	CipherSuite  string
	Trust        string
	Elapsed      time.Duration
	Certificates int
}

func summarize(res *handshake.Result) resultSummary {
	return resultSummary{
		PeerAddr:     res.PeerAddr,
		Version:      res.Version,
		CipherSuite:  res.CipherSuite,
		Trust:        res.Trust.String(),
		Elapsed:      res.Elapsed,
		Certificates: len(res.Chain),
	}
}

// failure turns a finished report into the error returned by the command.
func failure(r *report.Report) error {
	if !r.Failed() {
		return nil
	}

	if r.Err != nil {
		return &StageError{Stage: r.Stage, Err: r.Err}
	}

	n := len(r.DecodeErrors)

	return &StageError{
		Stage: stageDecode,
		Err: fmt.Errorf("%d of %d certificates could not be decoded: %w",
			n, n+len(r.Records), r.DecodeErrors[0]),
	}
}

func newLogger(w io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)

	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && term.IsTerminal(int(f.Fd()))
}

func runInspect(cmd *cobra.Command, cfg *CertpeekConfig, args []string) error {
	format, err := report.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	in := &inspector{
		anchors: loadAnchors(),
		cfg:     cfg,
		log:     newLogger(stderr, cfg.Debug),
	}

	if cfg.Debug {
		in.debug = stderr
		dump.Fprint(stderr, cfg)
	}

	printerOpts := []report.Option{
		report.WithColor(isTerminal(stdout)),
		report.WithExpiryWarnDays(cfg.WarnDays),
	}

	targets := cfg.targetsFor(args)
	if len(args) > 0 {
		p, err := report.New(format, stdout, stderr, printerOpts...)
		if err != nil {
			return err
		}

		return inspectOne(cmd.Context(), in, targets[0], p)
	}

	return inspectBatch(cmd.Context(), in, targets, format, stdout, printerOpts)
}

func inspectOne(ctx context.Context, in *inspector, tc TargetConfig, p report.Printer) error {
	r, err := in.inspect(ctx, tc, p)
	if err != nil {
		return err
	}

	if r.Err != nil {
		return failure(r)
	}

	if err := p.Report(r); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}

	return failure(r)
}

// inspectBatch inspects targets concurrently. Output of each target is
// buffered and written in the order the targets were listed.
func inspectBatch(
	ctx context.Context,
	in *inspector,
	targets []TargetConfig,
	format report.Format,
	out io.Writer,
	printerOpts []report.Option,
) error {
	concurrency := in.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	buffers := make([]*bytebufferpool.ByteBuffer, len(targets))
	reports := make([]*report.Report, len(targets))

	defer func() {
		for _, b := range buffers {
			if b != nil {
				bytebufferpool.Put(b)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, tc := range targets {
		buf := bytebufferpool.Get()
		buffers[i] = buf

		g.Go(func() error {
			// Header lines of JSON output are left out in batch mode so
			// that concurrent targets do not interleave on stderr.
			p, err := report.New(format, buf, nil, printerOpts...)
			if err != nil {
				return err
			}

			in.log.WithField("host", tc.Host).Debug("inspecting target")

			r, err := in.inspect(gctx, tc, p)
			if err != nil {
				return err
			}

			if r.Stage == stageResolve {
				if err := p.Header(r.Target); err != nil {
					return fmt.Errorf("error writing output: %w", err)
				}
			}

			reports[i] = r

			return p.Report(r)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var (
		failed   int
		firstErr error
	)

	for i, buf := range buffers {
		if i > 0 && format != report.JSON {
			fmt.Fprintln(out)
		}

		if _, err := buf.WriteTo(out); err != nil {
			return fmt.Errorf("error writing output: %w", err)
		}

		if err := failure(reports[i]); err != nil {
			failed++

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed, first %w", failed, len(targets), firstErr)
	}

	return nil
}
