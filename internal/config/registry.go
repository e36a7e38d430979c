package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tugatalk/tugatalk/pkg/provider/agent"
	"github.com/tugatalk/tugatalk/pkg/provider/scorer"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
	"github.com/tugatalk/tugatalk/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	scorer map[string]func(ProviderEntry) (scorer.Scorer, error)
	stt    map[string]func(ProviderEntry) (stt.Transcriber, error)
	tts    map[string]func(ProviderEntry) (tts.Synthesizer, error)
	agent  map[string]func(ProviderEntry) (agent.Responder, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		scorer: make(map[string]func(ProviderEntry) (scorer.Scorer, error)),
		stt:    make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		tts:    make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
		agent:  make(map[string]func(ProviderEntry) (agent.Responder, error)),
	}
}

// RegisterScorer registers a speech scorer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterScorer(name string, factory func(ProviderEntry) (scorer.Scorer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorer[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterAgent registers a responder factory under name.
func (r *Registry) RegisterAgent(name string, factory func(ProviderEntry) (agent.Responder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agent[name] = factory
}

// CreateScorer instantiates a speech scorer using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateScorer(entry ProviderEntry) (scorer.Scorer, error) {
	r.mu.RLock()
	factory, ok := r.scorer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scorer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a synthesizer using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAgent instantiates a responder using the factory registered under entry.Name.
func (r *Registry) CreateAgent(entry ProviderEntry) (agent.Responder, error) {
	r.mu.RLock()
	factory, ok := r.agent[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: agent/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
