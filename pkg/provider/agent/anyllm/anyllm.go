// Package anyllm provides a conversation agent backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface
// that supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral,
// Groq, and more.
//
// Usage:
//
//	r, err := anyllm.New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-..."))
//	reply, err := r.Respond(ctx, "bom dia", "whisper")
package anyllm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/tugatalk/tugatalk/pkg/provider/agent"
)

// Compile-time assertion that Responder satisfies agent.Responder.
var _ agent.Responder = (*Responder)(nil)

// defaultSystemPrompt instructs the model to act as a European Portuguese
// conversation tutor for a beginner learner.
const defaultSystemPrompt = `You are a friendly European Portuguese conversation tutor.
The learner speaks to you through speech recognition, so transcripts may
contain small recognition mistakes; interpret them charitably. Reply in
simple European Portuguese (pt-PT), one or two short sentences, at a
beginner level. When the learner makes a grammar or vocabulary mistake,
give the corrected phrase briefly before continuing the conversation.
Never switch to English unless the learner explicitly asks.`

const (
	defaultMaxHistory  = 20
	defaultMaxTokens   = 256
	defaultTemperature = 0.7
)

// Responder implements agent.Responder by wrapping any-llm-go chat
// completion. It keeps a bounded in-memory history of the conversation so
// replies stay coherent across turns. Safe for concurrent use, though the
// pipeline runs at most one turn at a time.
type Responder struct {
	backend anyllmlib.Provider
	model   string

	systemPrompt string
	maxHistory   int
	maxTokens    int
	temperature  float64

	mu      sync.Mutex
	history []anyllmlib.Message
}

// Option is a functional option for configuring a Responder.
type Option func(*Responder)

// WithSystemPrompt replaces the default tutoring system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(r *Responder) { r.systemPrompt = prompt }
}

// WithMaxHistory bounds how many prior messages (user and assistant
// combined) are replayed to the model. Defaults to 20.
func WithMaxHistory(n int) Option {
	return func(r *Responder) { r.maxHistory = n }
}

// WithMaxTokens bounds the reply length. Defaults to 256.
func WithMaxTokens(n int) Option {
	return func(r *Responder) { r.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Defaults to 0.7.
func WithTemperature(t float64) Option {
	return func(r *Responder) { r.temperature = t }
}

// New creates a Responder backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq". model is the specific model to use
// (e.g., "gpt-4o"). libOpts are any-llm-go configuration options; without
// an API key option the provider falls back to its environment variable
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, etc.).
func New(providerName, model string, libOpts []anyllmlib.Option, opts ...Option) (*Responder, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	r := &Responder{
		backend:      backend,
		model:        model,
		systemPrompt: defaultSystemPrompt,
		maxHistory:   defaultMaxHistory,
		maxTokens:    defaultMaxTokens,
		temperature:  defaultTemperature,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

// Respond implements agent.Responder. The transcript is appended to the
// bounded history only after a successful completion, so a failed or
// cancelled turn leaves the conversation state untouched.
func (r *Responder) Respond(ctx context.Context, transcript, source string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("anyllm: transcript must not be empty")
	}

	r.mu.Lock()
	messages := make([]anyllmlib.Message, 0, len(r.history)+2)
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleSystem,
		Content: r.systemPrompt,
	})
	messages = append(messages, r.history...)
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: transcript,
	})
	r.mu.Unlock()

	params := anyllmlib.CompletionParams{
		Model:    r.model,
		Messages: messages,
	}
	t := r.temperature
	params.Temperature = &t
	mt := r.maxTokens
	params.MaxTokens = &mt

	resp, err := r.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if reply == "" {
		return "", fmt.Errorf("anyllm: model returned empty reply")
	}

	r.mu.Lock()
	r.history = append(r.history,
		anyllmlib.Message{Role: anyllmlib.RoleUser, Content: transcript},
		anyllmlib.Message{Role: anyllmlib.RoleAssistant, Content: reply},
	)
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
	r.mu.Unlock()

	return reply, nil
}

// ResetHistory clears the conversation memory, e.g. when a new lesson
// starts.
func (r *Responder) ResetHistory() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
}
