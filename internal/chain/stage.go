// Package chain assembles ordered lists of processing stages into live
// publish/subscribe topologies and runs each stage as an independently
// faulting unit of concurrency.
package chain

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// DefaultIngressTopic is the well-known topic new conversations are
// published to. A stage started with default options subscribes here.
const DefaultIngressTopic = "ingress-conversations"

// Stage is the execution contract every pluggable stage satisfies.
//
// Process receives a conversation id, loads and mutates the record through
// its own store handle, and reports whether the id should be republished to
// the stage's egress topics. Returning forward=false is the filter action:
// propagation down the chain ends for that conversation.
type Stage interface {
	Name() string
	DefaultOptions() Options
	Process(ctx context.Context, conversationID string, opts Options) (forward bool, err error)
}

// Options is the flat configuration record a stage is started with.
type Options struct {
	IngressTopics []string
	EgressTopics  []string
	Settings      map[string]string // stage-specific switches
}

// Clone returns a deep copy so per-chain wiring never mutates a stage's
// registered defaults.
func (o Options) Clone() Options {
	c := Options{
		IngressTopics: append([]string(nil), o.IngressTopics...),
		EgressTopics:  append([]string(nil), o.EgressTopics...),
	}
	if o.Settings != nil {
		c.Settings = make(map[string]string, len(o.Settings))
		for k, v := range o.Settings {
			c.Settings[k] = v
		}
	}
	return c
}

// Setting returns a stage-specific option value, or fallback when unset.
func (o Options) Setting(key, fallback string) string {
	if v, ok := o.Settings[key]; ok {
		return v
	}
	return fallback
}

// BoolSetting returns a stage-specific boolean option.
func (o Options) BoolSetting(key string, fallback bool) bool {
	v, ok := o.Settings[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// IntSetting returns a stage-specific integer option.
func (o Options) IntSetting(key string, fallback int) int {
	v, ok := o.Settings[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Registry is the static stage registry: a mapping from stage name to
// implementation, populated explicitly at process start.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
}

func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

func (r *Registry) Register(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage.Name()] = stage
}

func (r *Registry) Get(name string) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stage, ok := r.stages[name]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	return stage, nil
}

// Names returns the registered stage names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	return names
}
