// Package tools defines the tool abstraction the agent dispatches against
// and a registry that records which server owns each tool.
package tools

import (
	"context"
	goerrors "errors"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound reports a tool name that no connected server registered.
// Dispatch failures caused by it are surfaced to the model in-band rather
// than failing the turn.
var ErrNotFound = goerrors.New("tool is not registered")

// Tool defines one action the agent can take.
type Tool interface {
	Name() string
	Description() string
	// InputSchema is the JSON schema of the tool's arguments, as declared
	// by the owning server. May be nil when the server declares none.
	InputSchema() map[string]interface{}
	Call(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds the currently available tools. Ownership is recorded
// explicitly at registration time; nothing is ever inferred from tool name
// prefixes.
type Registry struct {
	order  []string
	byName map[string]Tool
	owner  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
		owner:  make(map[string]string),
	}
}

// Register adds a tool under the given owning server. A duplicate name
// replaces the earlier registration.
func (r *Registry) Register(serverName string, t Tool) {
	if _, exists := r.byName[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.byName[t.Name()] = t
	r.owner[t.Name()] = serverName
}

// Lookup resolves a tool by name, returning ErrNotFound for unknown names.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// Owner returns the server that registered the named tool.
func (r *Registry) Owner(name string) (string, bool) {
	s, ok := r.owner[name]
	return s, ok
}

// Tools returns all registered tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Servers returns the owning server names, sorted.
func (r *Registry) Servers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.owner {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ToolsFor returns the tools owned by one server, in registration order.
func (r *Registry) ToolsFor(serverName string) []Tool {
	var out []Tool
	for _, name := range r.order {
		if r.owner[name] == serverName {
			out = append(out, r.byName[name])
		}
	}
	return out
}

// Filter returns a registry restricted to tools whose names match at least
// one glob pattern. An empty pattern list keeps everything.
func (r *Registry) Filter(patterns []string) *Registry {
	if len(patterns) == 0 {
		return r
	}
	filtered := NewRegistry()
	for _, name := range r.order {
		if matchesAny(name, patterns) {
			filtered.Register(r.owner[name], r.byName[name])
		}
	}
	return filtered
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
