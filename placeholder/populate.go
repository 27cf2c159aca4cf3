package placeholder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/imagewarm/optimizer"
)

var errEmptyPayload = errors.New("engine returned an empty placeholder")

// Engine produces the bytes of an image variant.
type Engine interface {
	Transform(ctx context.Context, img optimizer.CachedImage) ([]byte, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, img optimizer.CachedImage) ([]byte, error)

// Transform calls f.
func (f EngineFunc) Transform(ctx context.Context, img optimizer.CachedImage) ([]byte, error) {
	return f(ctx, img)
}

// TransformError reports an image the engine could not produce. The image is
// left out of the cache and is fetched over the network at serve time.
type TransformError struct {
	Image optimizer.CachedImage
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Image, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Result summarizes a Populate run.
type Result struct {
	Considered int // distinct blur images
	Inserted   int
	Errors     []*TransformError
}

type config struct {
	concurrency int
	retries     int
	timeout     time.Duration
	interval    time.Duration
	logger      *slog.Logger
}

// Option configures Populate.
type Option func(*config)

// WithConcurrency bounds parallel engine calls.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

// WithRetries sets how many times a failed transform is retried.
func WithRetries(n int) Option {
	return func(c *config) {
		if n < 0 {
			n = 0
		}
		c.retries = n
	}
}

// WithTimeout bounds each engine call. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryInterval sets the initial backoff between retries.
func WithRetryInterval(d time.Duration) Option {
	return func(c *config) {
		c.interval = d
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Populate generates placeholders for the blur images among images and
// inserts them into cache. Resize variants are ignored; they are produced on
// demand. A failing image never stops the others. The returned error is
// non-nil only if ctx is cancelled.
func Populate(ctx context.Context, cache *Cache, engine Engine, images []optimizer.CachedImage, opts ...Option) (*Result, error) {
	cfg := config{
		concurrency: 4,
		retries:     2,
		timeout:     30 * time.Second,
		interval:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var blurs []optimizer.CachedImage
	seen := make(map[optimizer.CachedImage]struct{})
	for _, img := range images {
		if !img.IsBlur() {
			continue
		}
		if _, ok := seen[img]; ok {
			continue
		}
		seen[img] = struct{}{}
		blurs = append(blurs, img)
	}

	var (
		mu       sync.Mutex
		failures []*TransformError
		inserted atomic.Int64
	)
	fail := func(img optimizer.CachedImage, err error) {
		logger.Warn("placeholder generation failed", "image", img.URL(), "error", err)
		mu.Lock()
		failures = append(failures, &TransformError{Image: img, Err: err})
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for _, img := range blurs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			payload, err := generate(ctx, engine, img, &cfg, logger)
			if err != nil {
				fail(img, err)
				return nil
			}
			ok, err := cache.Insert(img, payload)
			if err != nil {
				fail(img, err)
				return nil
			}
			if ok {
				inserted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Considered: len(blurs),
		Inserted:   int(inserted.Load()),
		Errors:     failures,
	}, nil
}

func generate(ctx context.Context, engine Engine, img optimizer.CachedImage, cfg *config, logger *slog.Logger) ([]byte, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.interval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.retries)), ctx)

	var payload []byte
	op := func() error {
		callCtx := ctx
		if cfg.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
		data, err := engine.Transform(callCtx, img)
		switch {
		case err == nil && len(data) == 0:
			return backoff.Permanent(errEmptyPayload)
		case err != nil && isPermanent(err):
			return backoff.Permanent(err)
		case err != nil:
			return err
		}
		payload = data
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("retrying placeholder", "image", img.URL(), "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return payload, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, optimizer.ErrInvalidVariant) ||
		errors.Is(err, optimizer.ErrExternalSource)
}
