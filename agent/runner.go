// Retry wrapper around the match loop.
//
// The loop itself has no round cap, so each invocation is bounded from the
// outside: a fixed number of attempts with a fixed delay between them.
// Every attempt gets a fresh provider client and matcher.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/richinex/animatch/llm"
	"github.com/richinex/animatch/model"
)

// Factory builds a matcher for one attempt.
type Factory func(platform model.Platform, providerName, modelName string) (*Matcher, error)

// NewFactory returns a Factory that builds providers from environment
// credentials with the given completion settings.
func NewFactory(maxTokens uint32, temperature float32, logger *slog.Logger) Factory {
	return func(platform model.Platform, providerName, modelName string) (*Matcher, error) {
		providerType, err := llm.ParseProviderType(providerName)
		if err != nil {
			return nil, err
		}
		provider, err := providerType.
			Model(modelName).
			MaxTokens(maxTokens).
			Temperature(temperature).
			FromEnv()
		if err != nil {
			return nil, err
		}

		switch platform {
		case model.PlatformBgmTV:
			return NewBgmTVMatcher(provider, logger)
		case model.PlatformTMDB:
			return NewTMDBMatcher(provider, logger)
		default:
			return nil, fmt.Errorf("no matcher for platform %q", platform)
		}
	}
}

// Runner retries transient match failures up to a fixed budget.
type Runner struct {
	factory    Factory
	retryCount int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewRunner creates a retrying runner. retryCount is the total number of
// attempts, not the number of retries after the first.
func NewRunner(factory Factory, retryCount int, retryDelay time.Duration, logger *slog.Logger) *Runner {
	if retryCount < 1 {
		retryCount = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		factory:    factory,
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Match resolves one query against the platform's catalog. An empty result
// from a completed loop is a valid outcome and is never retried; only
// transient failures consume the retry budget.
func (r *Runner) Match(ctx context.Context, platform model.Platform, providerName, modelName, query string) (model.MatchResult, error) {
	var lastErr error

	for attempt := 0; attempt < r.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.MatchResult{}, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}

		matcher, err := r.factory(platform, providerName, modelName)
		if err != nil {
			return model.MatchResult{}, fmt.Errorf("failed to build matcher: %w", err)
		}

		result, err := matcher.Match(ctx, query)
		if err == nil {
			return result, nil
		}

		if !llm.IsTransient(err) {
			return model.MatchResult{}, err
		}

		r.logger.Warn("match attempt failed",
			"platform", platform,
			"attempt", attempt+1,
			"max_attempts", r.retryCount,
			"error", err)
		lastErr = err
	}

	return model.MatchResult{}, fmt.Errorf("match failed after %d attempts: %w", r.retryCount, lastErr)
}
