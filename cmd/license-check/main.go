// Command license-check is the operator tool for the CostPilot Pro gate.
//
// Usage:
//
//	license-check validate [--license PATH] [--debug]
//	license-check inspect-bundle [--bundle PATH]
//	license-check load-bundle [--bundle PATH] [--license PATH]
//	license-check reset-attempts
//
// Exit status is 0 on success, 1 when a license or bundle is rejected and 2
// on usage or configuration errors.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"costpilot/internal/bundle"
	"costpilot/internal/config"
	"costpilot/internal/edition"
	apperrors "costpilot/internal/errors"
	"costpilot/internal/infrastructure"
	"costpilot/internal/license"
	"costpilot/internal/ratelimit"
	"costpilot/internal/security"
)

const (
	exitOK       = 0
	exitRejected = 1
	exitUsage    = 2
)

// shutdownTimeout bounds the telemetry flush on exit
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	return newCLI(stdout, stderr).run(args)
}

// cli carries the process dependencies so tests can swap the trust anchors,
// issuer allowlist and host fingerprint.
type cli struct {
	stdout, stderr io.Writer

	issuers     []string
	licenseKey  func() (ed25519.PublicKey, error)
	bundleKey   func() (ed25519.PublicKey, error)
	fingerprint security.FingerprintSource
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout:      stdout,
		stderr:      stderr,
		issuers:     config.TrustedIssuers(),
		licenseKey:  config.LicensePublicKey,
		bundleKey:   config.BundlePublicKey,
		fingerprint: security.DefaultFingerprintSource(),
	}
}

// options are the flags shared by every subcommand
type options struct {
	configFile string
	license    string
	bundle     string
	stateFile  string
	debug      bool
}

func (c *cli) usage() {
	fmt.Fprintf(c.stderr, `Usage: license-check <command> [flags]

Commands:
  validate         check the license and print the edition
  inspect-bundle   verify the bundle signature and print its metadata
  load-bundle      validate the license and decrypt the bundle
  reset-attempts   clear the license attempt counter

Run "license-check <command> --help" for flags.
`)
}

func (c *cli) run(args []string) int {
	if len(args) == 0 {
		c.usage()
		return exitUsage
	}

	command, rest := args[0], args[1:]
	var handler func(context.Context, *env) int
	switch command {
	case "validate":
		handler = c.validate
	case "inspect-bundle":
		handler = c.inspectBundle
	case "load-bundle":
		handler = c.loadBundle
	case "reset-attempts":
		handler = c.resetAttempts
	case "help", "-h", "--help":
		c.usage()
		return exitOK
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n", command)
		c.usage()
		return exitUsage
	}

	opts, err := c.parseFlags(command, rest)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return exitUsage
	}

	e, err := c.setup(opts)
	if err != nil {
		fmt.Fprintf(c.stderr, "configuration error: %v\n", err)
		return exitUsage
	}
	defer e.close()

	ctx := infrastructure.EnsureTraceID(context.Background())
	return handler(ctx, e)
}

func (c *cli) parseFlags(command string, args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.StringVar(&opts.configFile, "config", "", "path to costpilot.yaml (default: search working dir and XDG config dirs)")
	fs.BoolVar(&opts.debug, "debug", false, "show why a license or bundle was rejected")
	fs.StringVar(&opts.stateFile, "state-file", "", "override the attempt counter file")

	switch command {
	case "validate":
		fs.StringVar(&opts.license, "license", "", "license file")
	case "inspect-bundle":
		fs.StringVar(&opts.bundle, "bundle", "", "encrypted bundle file")
	case "load-bundle":
		fs.StringVar(&opts.license, "license", "", "license file")
		fs.StringVar(&opts.bundle, "bundle", "", "encrypted bundle file")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// env is the wired runtime for one command
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *infrastructure.OTelProviders
	limiter   *ratelimit.FileLimiter
	debug     bool
}

func (c *cli) setup(opts *options) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFrom(opts.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.license != "" {
		cfg.License.Path = opts.license
	}
	if opts.bundle != "" {
		cfg.Bundle.Path = opts.bundle
	}
	if opts.stateFile != "" {
		cfg.RateLimit.StateFile = opts.stateFile
	}
	if opts.debug {
		cfg.License.Debug = true
		cfg.Logging.Level = "debug"
	}

	logger, err := infrastructure.InitializeLoggerTo(cfg.Logging, c.stderr)
	if err != nil {
		return nil, err
	}

	telemetry, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		_ = infrastructure.CloseLogFile()
		return nil, err
	}

	limiter := ratelimit.NewFileLimiterFromConfig(cfg.RateLimit,
		ratelimit.WithLogger(infrastructure.WithComponent(logger, "ratelimit")))

	return &env{
		cfg:       cfg,
		logger:    logger,
		telemetry: telemetry,
		limiter:   limiter,
		debug:     cfg.License.Debug,
	}, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.telemetry.Shutdown(ctx); err != nil {
		e.logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
	}
	_ = infrastructure.CloseLogFile()
}

func (c *cli) newDetector(e *env) (*edition.Detector, error) {
	key, err := c.licenseKey()
	if err != nil {
		return nil, err
	}
	verifier, err := security.NewVerifier(key)
	if err != nil {
		return nil, err
	}
	validator, err := license.NewValidator(verifier, e.limiter,
		license.WithTrustedIssuers(c.issuers...),
		license.WithLogger(e.logger),
		license.WithTracer(e.telemetry.Tracer),
	)
	if err != nil {
		return nil, err
	}
	return edition.NewDetector(validator, e.logger, e.debug), nil
}

func (c *cli) newLoader(e *env) (*bundle.Loader, error) {
	key, err := c.bundleKey()
	if err != nil {
		return nil, err
	}
	verifier, err := security.NewVerifier(key)
	if err != nil {
		return nil, err
	}

	var deriverOpts []security.DeriverOption
	if e.cfg.Bundle.MachineBinding {
		binding, err := c.fingerprint.MachineBinding()
		if err != nil {
			return nil, err
		}
		deriverOpts = append(deriverOpts, security.WithMachineBinding(binding))
	}

	return bundle.NewLoader(verifier, security.NewKeyDeriver(deriverOpts...),
		bundle.WithMaxSize(e.cfg.Bundle.MaxSize),
		bundle.WithLogger(e.logger),
		bundle.WithTracer(e.telemetry.Tracer),
	)
}

func (c *cli) validate(ctx context.Context, e *env) int {
	detector, err := c.newDetector(e)
	if err != nil {
		fmt.Fprintf(c.stderr, "setup failed: %v\n", err)
		return exitUsage
	}

	res := detector.Detect(ctx, e.cfg.License.Path)
	fmt.Fprintln(c.stdout, res.Edition)
	if res.Premium() {
		e.logger.DebugContext(ctx, "License accepted",
			slog.String("license_key", infrastructure.MaskLicenseKey(res.Record.LicenseKey)),
			slog.String("expires", res.Record.Expires))
		return exitOK
	}
	c.reportRejection(e, res.Err)
	return exitRejected
}

func (c *cli) inspectBundle(ctx context.Context, e *env) int {
	loader, err := c.newLoader(e)
	if err != nil {
		fmt.Fprintf(c.stderr, "setup failed: %v\n", err)
		return exitUsage
	}

	b, err := loader.Inspect(ctx, e.cfg.Bundle.Path)
	if err != nil {
		fmt.Fprintln(c.stdout, "invalid")
		c.reportRejection(e, err)
		return exitRejected
	}

	fmt.Fprintf(c.stdout, "alg: %s\n", b.Metadata.Alg)
	if b.Metadata.HeuristicsVersion != "" {
		fmt.Fprintf(c.stdout, "heuristics_version: %s\n", b.Metadata.HeuristicsVersion)
	}
	fmt.Fprintf(c.stdout, "custom_salt: %t\n", b.Metadata.Salt != "")
	fmt.Fprintf(c.stdout, "ciphertext_bytes: %d\n", len(b.Ciphertext))
	fmt.Fprintln(c.stdout, "signature: valid")
	return exitOK
}

func (c *cli) loadBundle(ctx context.Context, e *env) int {
	detector, err := c.newDetector(e)
	if err != nil {
		fmt.Fprintf(c.stderr, "setup failed: %v\n", err)
		return exitUsage
	}
	loader, err := c.newLoader(e)
	if err != nil {
		fmt.Fprintf(c.stderr, "setup failed: %v\n", err)
		return exitUsage
	}

	res := detector.Detect(ctx, e.cfg.License.Path)
	if !res.Premium() {
		fmt.Fprintln(c.stdout, res.Edition)
		c.reportRejection(e, res.Err)
		return exitRejected
	}

	module, err := loader.Load(ctx, e.cfg.Bundle.Path, res.Record)
	if err != nil {
		fmt.Fprintln(c.stdout, "bundle rejected")
		c.reportRejection(e, err)
		return exitRejected
	}
	defer security.Zeroize(module)

	sum := sha256.Sum256(module)
	fmt.Fprintf(c.stdout, "module_bytes: %d\nmodule_sha256: %s\n", len(module), hex.EncodeToString(sum[:]))
	return exitOK
}

func (c *cli) resetAttempts(_ context.Context, e *env) int {
	if err := e.limiter.Reset(); err != nil {
		fmt.Fprintf(c.stderr, "reset failed: %v\n", err)
		return exitRejected
	}
	fmt.Fprintln(c.stdout, "attempts reset")
	return exitOK
}

// reportRejection prints failure detail in debug mode only
func (c *cli) reportRejection(e *env, err error) {
	if !e.debug || err == nil {
		return
	}
	fmt.Fprintf(c.stderr, "%s: %v\n", apperrors.Code(err), err)
}
