// Command fetchstream requests a url and writes the response body to
// stdout chunk by chunk, as it arrives.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frankli0324/go-fetchstream"
)

type flags struct {
	Method          string
	Headers         []string
	Data            string
	Mode            string
	Timeout         time.Duration
	Origin          string
	OmitCredentials bool
	NoHTTP2         bool
	Include         bool
	Verbose         bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "fetchstream [flags] URL",
		Short: "Stream an HTTP response body to stdout",
		Long: `fetchstream issues a single request and copies every body chunk to
stdout as soon as it is delivered.

--mode picks the transport: auto probes the environment, native reads the
body off the connection, binary and text go through the progress driven
legacy client.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, &f, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.Method, "method", "X", "", "request method (default GET, POST with --data)")
	fs.StringArrayVarP(&f.Headers, "header", "H", nil, `request header "Name: value", repeatable`)
	fs.StringVarP(&f.Data, "data", "d", "", "request body")
	fs.StringVar(&f.Mode, "mode", "auto", "transport: auto|native|binary|text")
	fs.DurationVar(&f.Timeout, "timeout", 0, "abort the request after this long, body included")
	fs.StringVar(&f.Origin, "origin", "", "origin relative urls are resolved against")
	fs.BoolVar(&f.OmitCredentials, "omit-credentials", false, "never attach cookies")
	fs.BoolVar(&f.NoHTTP2, "no-http2", false, "do not offer h2 in TLS handshakes")
	fs.BoolVarP(&f.Include, "include", "i", false, "print the status line and response headers")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "log transport selection and faults to stderr")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func parseHeaders(raw []string) (*fetchstream.Headers, error) {
	h := fetchstream.NewHeaders()
	for _, line := range raw {
		k, v, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("malformed header %q", line)
		}
		h.Append(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return h, nil
}

func run(ctx context.Context, f *flags, url string, stdout, stderr io.Writer) error {
	logger, err := newLogger(f.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	hdr, err := parseHeaders(f.Headers)
	if err != nil {
		return err
	}
	opts := &fetchstream.Options{Method: f.Method, Headers: hdr}
	if f.Data != "" {
		opts.Body = f.Data
		if opts.Method == "" {
			opts.Method = "POST"
		}
	}
	if f.OmitCredentials {
		opts.Credentials = fetchstream.CredentialsOmit
	}

	cl, err := fetchstream.NewClient(&fetchstream.Config{
		Origin:       f.Origin,
		Timeout:      f.Timeout,
		DisableHTTP2: f.NoHTTP2,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if f.Mode != "auto" {
		s, err := fetchstream.ParseStrategy(f.Mode)
		if err != nil {
			return err
		}
		cl.TransportFactory = fetchstream.Force(s)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	resp, err := cl.Fetch(ctx, url, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Cancel()

	if f.Include {
		fmt.Fprintf(stdout, "%d %s\r\n%s\r\n", resp.Status, resp.StatusText, resp.Headers.Format())
	}
	if _, err := io.Copy(stdout, fetchstream.NewReader(ctx, resp.Body)); err != nil {
		return err
	}
	if !resp.OK {
		fmt.Fprintf(stderr, "fetchstream: %s responded %d %s\n", resp.URL, resp.Status, resp.StatusText)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fetchstream: %v\n", err)
		os.Exit(1)
	}
}
