// Package template holds the named request templates used to build provider
// URLs. A Registry is built once at startup and is read-only afterwards, so it
// can be shared between goroutines without locking.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrTemplateNotFound   = errors.New("template: not found")
	ErrMissingPlaceholder = errors.New("template: missing placeholder")
	ErrInvalidDefinition  = errors.New("template: invalid definition")
)

// placeholderPattern matches bracketed tokens such as {CITY} or {API_KEY}.
var placeholderPattern = regexp.MustCompile(`\{[A-Za-z][A-Za-z0-9_]*\}`)

// Definition describes one named template. Placeholders lists the tokens a
// caller must supply when rendering; when nil they are discovered from the
// {TOKEN} markers present in Body.
type Definition struct {
	Name         string
	Body         string
	Placeholders []string
}

// Substitution replaces every literal occurrence of Placeholder with Value.
type Substitution struct {
	Placeholder string
	Value       string
}

// Sub is shorthand for building a Substitution.
func Sub(placeholder, value string) Substitution {
	return Substitution{Placeholder: placeholder, Value: value}
}

type entry struct {
	body     string
	required []string
}

type Registry struct {
	entries map[string]entry
}

// New validates the definitions and freezes them into a Registry.
func New(defs ...Definition) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(defs))}
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidDefinition)
		}
		if _, dup := r.entries[name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidDefinition, name)
		}
		required := def.Placeholders
		if required == nil {
			required = Placeholders(def.Body)
		}
		for _, p := range required {
			if p == "" {
				return nil, fmt.Errorf("%w: %q declares an empty placeholder", ErrInvalidDefinition, name)
			}
			if !strings.Contains(def.Body, p) {
				return nil, fmt.Errorf("%w: %q declares %s which its body does not contain", ErrInvalidDefinition, name, p)
			}
		}
		r.entries[name] = entry{body: def.Body, required: append([]string(nil), required...)}
	}
	return r, nil
}

// Get returns the raw template body.
func (r *Registry) Get(name string) (string, error) {
	e, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return e.body, nil
}

// Render substitutes subs into the named template and returns a new string.
// Every required placeholder must have a substitution; substitutions whose
// placeholder does not occur in the body are ignored.
func (r *Registry) Render(name string, subs ...Substitution) (string, error) {
	e, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	for _, p := range e.required {
		if !hasSubstitution(subs, p) {
			return "", fmt.Errorf("%w: %s in %q", ErrMissingPlaceholder, p, name)
		}
	}
	pairs := make([]string, 0, 2*len(subs))
	for _, s := range subs {
		if s.Placeholder == "" {
			continue
		}
		pairs = append(pairs, s.Placeholder, s.Value)
	}
	// single pass: substituted values are never scanned for placeholders again
	return strings.NewReplacer(pairs...).Replace(e.body), nil
}

// Required lists the placeholders the named template needs.
func (r *Registry) Required(name string) ([]string, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return append([]string(nil), e.required...), nil
}

// Names returns the registered template names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (entry, bool) {
	if r == nil {
		return entry{}, false
	}
	e, ok := r.entries[name]
	return e, ok
}

// Placeholders extracts the distinct {TOKEN} markers of body in order of
// first appearance.
func Placeholders(body string) []string {
	found := placeholderPattern.FindAllString(body, -1)
	out := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, p := range found {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func hasSubstitution(subs []Substitution, placeholder string) bool {
	for _, s := range subs {
		if s.Placeholder == placeholder {
			return true
		}
	}
	return false
}
