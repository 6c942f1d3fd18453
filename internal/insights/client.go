package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultCacheSize = 256
)

type Config struct {
	Timeout   time.Duration
	RPS       float64
	Burst     int
	CacheSize int
}

// Client guards a Generator with a timeout, a client-side rate limit and a
// result cache keyed by prompt digest. Identical prompts in flight at the
// same time share one upstream call.
type Client struct {
	gen     Generator
	timeout time.Duration
	limiter *rate.Limiter
	cache   *lru.Cache[string, string]
	group   singleflight.Group
	logger  *slog.Logger
}

func NewClient(gen Generator, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create insights cache: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	}

	return &Client{
		gen:     gen,
		timeout: cfg.Timeout,
		limiter: limiter,
		cache:   cache,
		logger:  logger,
	}, nil
}

func digest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Generate returns insight text for prompt. Every failure is an *AiError.
// When ctx ends first, the caller gets a timeout error while the shared
// upstream call, bounded by the client timeout, finishes for other waiters.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	key := digest(prompt)
	if text, ok := c.cache.Get(key); ok {
		c.logger.Debug("insights cache hit", "digest", key[:12])
		return text, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.call(callCtx, key, prompt)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &AiError{Kind: KindTimeout, Err: ctx.Err()}
	}
}

func (c *Client) call(ctx context.Context, key, prompt string) (string, error) {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", &AiError{Kind: KindTimeout, Err: err}
		}
		// Wait fails fast when the deadline is shorter than the wait.
		return "", &AiError{Kind: KindRateLimited, Err: err}
	}

	text, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		aiErr := classify(err)
		c.logger.Warn("insights generation failed",
			"kind", aiErr.Kind.String(),
			"duration", time.Since(start),
			"error", err,
		)
		return "", aiErr
	}
	if text == "" {
		return "", &AiError{Kind: KindInvalidResponse, Err: ErrEmptyResponse}
	}

	c.cache.Add(key, text)
	c.logger.Info("insights generated",
		"digest", key[:12],
		"prompt_chars", len(prompt),
		"duration", time.Since(start),
	)
	return text, nil
}

// Disabled is a Generator for deployments without API keys.
type Disabled struct{}

var ErrDisabled = errors.New("insights are not configured")

func (Disabled) Generate(context.Context, string) (string, error) {
	return "", &AiError{Kind: KindServiceError, Err: ErrDisabled}
}
