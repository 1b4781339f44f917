// Package oracle talks to the language-model services that propose plans and repairs.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autotab/internal/planner"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderCodex  = "codex"
	ProviderMock   = "mock"
)

var (
	// ErrPlanFormat is returned when a reply carries no decodable JSON object.
	ErrPlanFormat = planner.ErrPlanFormat

	ErrUnauthorized = errors.New("oracle: unauthorized")
	ErrRateLimited  = errors.New("oracle: rate limited")
	ErrUnavailable  = errors.New("oracle: service unavailable")
	ErrMissingKey   = errors.New("oracle: api key not set")
)

// Provider sends one prompt and returns the raw text reply.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options configures a provider. Fields that do not apply to a provider are ignored.
type Options struct {
	Model   string
	APIKey  string
	BaseURL string
	// Timeout bounds each HTTP request or CLI run; zero means no limit.
	Timeout time.Duration
	// WorkDir is where the codex CLI runs and keeps its scratch files.
	WorkDir string
}

// New builds the named provider.
func New(name string, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderGemini:
		return NewGemini(opts)
	case ProviderOpenAI:
		return NewOpenAI(opts)
	case ProviderCodex:
		return NewCodex(opts), nil
	case ProviderMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", name)
	}
}
