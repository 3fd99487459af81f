package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"costpilot/internal/config"
	apperrors "costpilot/internal/errors"
	"costpilot/internal/license"
	"costpilot/internal/security"
)

// Loader turns an encrypted bundle into module bytes. It trusts the license
// it is given; validate the license first.
type Loader struct {
	verifier *security.Verifier
	deriver  *security.KeyDeriver
	maxSize  int64
	magic    []byte
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *LoaderMetrics
}

// Option configures a Loader
type Option func(*Loader)

// WithMaxSize caps the bundle file size
func WithMaxSize(n int64) Option {
	return func(l *Loader) { l.maxSize = n }
}

// WithMagic sets the expected plaintext header. The default is WASM.
func WithMagic(magic []byte) Option {
	return func(l *Loader) { l.magic = magic }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer
func WithTracer(t trace.Tracer) Option {
	return func(l *Loader) { l.tracer = t }
}

// WithMetrics sets the metric instruments
func WithMetrics(m *LoaderMetrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// NewLoader creates a Loader. The verifier holds the bundle signing key,
// which is distinct from the license key.
func NewLoader(verifier *security.Verifier, deriver *security.KeyDeriver, opts ...Option) (*Loader, error) {
	if verifier == nil {
		return nil, errors.New("bundle loader requires a signature verifier")
	}
	if deriver == nil {
		deriver = security.NewKeyDeriver()
	}

	l := &Loader{
		verifier: verifier,
		deriver:  deriver,
		maxSize:  config.DefaultMaxBundleSize,
		magic:    []byte(security.WASMMagic),
		logger:   slog.Default(),
		tracer:   otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		m, err := InitializeLoaderMetrics(otel.Meter(MeterName))
		if err != nil {
			return nil, err
		}
		l.metrics = m
	}
	l.logger = l.logger.With(slog.String("component", "bundle"))
	return l, nil
}

// Load reads the bundle at path and returns the decrypted module
func (l *Loader) Load(ctx context.Context, path string, rec *license.Record) ([]byte, error) {
	var out []byte
	err := l.traceLoad(ctx, path, func(ctx context.Context) error {
		data, err := l.readFile(path)
		if err != nil {
			return err
		}
		out, err = l.open(ctx, data, rec)
		return err
	})
	return out, err
}

// LoadBytes is Load on an in-memory bundle
func (l *Loader) LoadBytes(ctx context.Context, data []byte, rec *license.Record) ([]byte, error) {
	var out []byte
	err := l.traceLoad(ctx, "", func(ctx context.Context) error {
		if int64(len(data)) > l.maxSize {
			return l.tooLarge(int64(len(data)))
		}
		var err error
		out, err = l.open(ctx, data, rec)
		return err
	})
	return out, err
}

// Inspect parses the bundle at path and verifies its signature without
// decrypting anything.
func (l *Loader) Inspect(ctx context.Context, path string) (*EncryptedBundle, error) {
	data, err := l.readFile(path)
	if err != nil {
		return nil, err
	}
	b, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := VerifySignature(b, l.verifier); err != nil {
		return b, err
	}
	l.logger.DebugContext(ctx, "Bundle signature verified",
		slog.String("alg", b.Metadata.Alg),
		slog.String("heuristics_version", b.Metadata.HeuristicsVersion))
	return b, nil
}

// open runs the pipeline after the bytes are in memory. The derived key is
// destroyed on every path, and plaintext that fails the integrity check is
// wiped before returning.
func (l *Loader) open(ctx context.Context, data []byte, rec *license.Record) ([]byte, error) {
	b, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := VerifySignature(b, l.verifier); err != nil {
		return nil, err
	}
	if b.Metadata.Alg != AlgAES256GCM {
		return nil, apperrors.NewFormatError(fmt.Sprintf("unsupported bundle algorithm %q", b.Metadata.Alg), nil)
	}

	salt, err := b.Metadata.SaltBytes()
	if err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, fmt.Errorf("%w: no license", apperrors.ErrKeyDerivation)
	}
	key, err := l.deriver.Derive(rec.LicenseKey, rec.Email, salt)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	plaintext, err := security.Decrypt(key.Bytes(), b.Nonce, b.Ciphertext, b.MetadataBytes)
	if err != nil {
		return nil, err
	}

	if err := security.CheckModuleMagic(plaintext, l.magic); err != nil {
		security.Zeroize(plaintext)
		return nil, err
	}

	l.logger.DebugContext(ctx, "Bundle decrypted",
		slog.Int("module_bytes", len(plaintext)),
		slog.String("heuristics_version", b.Metadata.HeuristicsVersion))
	return plaintext, nil
}

// readFile reads at most maxSize bytes from path
func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewIOError("open bundle", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperrors.NewIOError("stat bundle", path, err)
	}
	if info.Size() > l.maxSize {
		return nil, l.tooLarge(info.Size())
	}

	// The limit guards against files that grow after Stat.
	data, err := io.ReadAll(io.LimitReader(f, l.maxSize+1))
	if err != nil {
		return nil, apperrors.NewIOError("read bundle", path, err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, l.tooLarge(int64(len(data)))
	}
	return data, nil
}

func (l *Loader) tooLarge(size int64) error {
	return apperrors.NewFormatError(fmt.Sprintf("bundle is %d bytes, limit is %d", size, l.maxSize), nil)
}
