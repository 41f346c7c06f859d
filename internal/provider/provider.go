// Package provider defines the pluggable external data-provider capability:
// each provider declares what queries it can answer and returns structured
// results the bot can render into chat.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Provider answers domain queries from an external data source.
type Provider interface {
	// Name identifies the provider in results and listings.
	Name() string
	// Description summarizes the provider's capabilities for prompts.
	Description() string
	// CanHandle reports whether the provider wants this query.
	CanHandle(query string) bool
	// Query performs the lookup.
	Query(ctx context.Context, query string) (Result, error)
}

// Result is a provider answer. Exactly the populated fields render: Err wins
// over everything, then Message and Items, with Note appended last.
type Result struct {
	Message string
	Items   []map[string]any
	Note    string
	Err     string
}

// Format renders the result for chat output.
func (r Result) Format() string {
	if r.Err != "" {
		return "Error: " + r.Err
	}

	var parts []string
	if r.Message != "" {
		parts = append(parts, r.Message)
	}
	for _, item := range r.Items {
		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s: %v", k, item[k]))
		}
		parts = append(parts, "• "+strings.Join(fields, ", "))
	}
	if r.Note != "" {
		parts = append(parts, r.Note)
	}
	if len(parts) == 0 {
		return "No results."
	}
	return strings.Join(parts, "\n")
}

// Registry holds the statically registered providers.
type Registry struct {
	providers []Provider
	log       zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{log: log}
}

// Register adds a provider. Registration order decides query order.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
	r.log.Info().Str("provider", p.Name()).Msg("registered data provider")
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// Query asks every provider that claims the query, keyed by provider name.
// A provider error becomes an Err result rather than aborting the rest.
func (r *Registry) Query(ctx context.Context, query string) map[string]Result {
	results := make(map[string]Result)
	for _, p := range r.providers {
		if !p.CanHandle(query) {
			continue
		}
		r.log.Debug().Str("provider", p.Name()).Msg("querying data provider")
		res, err := p.Query(ctx, query)
		if err != nil {
			r.log.Error().Err(err).Str("provider", p.Name()).Msg("provider query failed")
			res = Result{Err: err.Error()}
		}
		results[p.Name()] = res
	}
	return results
}

// CapabilitiesPrompt describes registered providers for the system prompt.
// Empty when nothing is registered.
func (r *Registry) CapabilitiesPrompt() string {
	if len(r.providers) == 0 {
		return ""
	}
	lines := []string{"I have access to the following data sources:"}
	for _, p := range r.providers {
		lines = append(lines, fmt.Sprintf("- %s: %s", p.Name(), p.Description()))
	}
	return strings.Join(lines, "\n")
}
