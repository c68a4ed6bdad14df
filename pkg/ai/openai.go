package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/devraulu/airank/pkg/config"
)

// OpenAI completes prompts through the langchaingo OpenAI client. The model is
// created on first use so a missing key only fails the calls that need it.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	custom  llms.Model

	once sync.Once
	llm  llms.Model
	err  error
}

type OpenAIOption func(*OpenAI)

// WithLLM replaces the langchaingo model, mainly for tests.
func WithLLM(m llms.Model) OpenAIOption {
	return func(o *OpenAI) { o.custom = m }
}

func NewOpenAI(cfg config.AIConfig, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		timeout: cfg.GetTimeout(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenAI) init() (llms.Model, error) {
	o.once.Do(func() {
		if o.custom != nil {
			o.llm = o.custom
			return
		}
		opts := []openai.Option{
			openai.WithToken(o.apiKey),
			openai.WithModel(o.model),
			openai.WithHTTPClient(&http.Client{Timeout: o.timeout}),
		}
		if o.baseURL != "" {
			opts = append(opts, openai.WithBaseURL(o.baseURL))
		}
		o.llm, o.err = openai.New(opts...)
	})
	return o.llm, o.err
}

func (o *OpenAI) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if o.apiKey == "" && o.custom == nil {
		return "", ErrNoKey
	}

	llm, err := o.init()
	if err != nil {
		return "", fmt.Errorf("%w: create openai model: %w", ErrHTTP, err)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var callOpts []llms.CallOption
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))

	resp, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHTTP, err)
	}

	resp = strings.TrimSpace(resp)
	if resp == "" {
		return "", ErrEmptyResponse
	}
	return resp, nil
}
