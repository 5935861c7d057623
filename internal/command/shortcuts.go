package command

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Registry holds the personal shortcut table: spoken key -> command
// template with optional {param} placeholders.
type Registry struct {
	shortcuts map[string]string
}

// LoadRegistry reads a YAML map of shortcuts. An empty path yields an empty
// registry; a missing file is an error since the path was configured.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{shortcuts: map[string]string{}}
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shortcuts file: %w", err)
	}
	if err := yaml.Unmarshal(data, &r.shortcuts); err != nil {
		return nil, fmt.Errorf("parse shortcuts file: %w", err)
	}
	return r, nil
}

// NewRegistry builds a registry from an in-memory table.
func NewRegistry(shortcuts map[string]string) *Registry {
	table := make(map[string]string, len(shortcuts))
	for k, v := range shortcuts {
		table[k] = v
	}
	return &Registry{shortcuts: table}
}

// Keys returns the shortcut keys in stable order, used as classifier
// prompt examples.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.shortcuts))
	for k := range r.shortcuts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve substitutes URL-encoded parameter values into the template for
// key. Unknown keys and unresolved placeholders are errors; parameters are
// never spliced in raw.
func (r *Registry) Resolve(key string, params map[string]string) (string, error) {
	template, ok := r.shortcuts[key]
	if !ok {
		return "", fmt.Errorf("no shortcut found for key: %s", key)
	}
	var missing string
	resolved := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := params[name]
		if !ok {
			missing = name
			return match
		}
		return url.QueryEscape(value)
	})
	if missing != "" {
		return "", fmt.Errorf("shortcut %q missing parameter %q", key, missing)
	}
	return resolved, nil
}
