// Package autofill maps applicant and project data onto permit form fields,
// fills and transforms values, and validates the filled form.
package autofill

import (
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permit-cli/internal/model"
)

// Record namespaces a source path may start with.
const (
	NamespaceUser    = "user"
	NamespaceProject = "project"
)

// Path is a parsed source path: a namespace followed by one or more keys.
type Path struct {
	Namespace string
	Segments  []string
}

func (p Path) String() string {
	return p.Namespace + "." + strings.Join(p.Segments, ".")
}

// ParsePath parses "<namespace>.<segment>(.<segment>)*". Segments must be
// non-empty and contain no whitespace.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return Path{}, eris.Errorf("autofill: path %q has no segments", s)
	}
	ns := parts[0]
	if ns != NamespaceUser && ns != NamespaceProject {
		return Path{}, eris.Errorf("autofill: path %q has unknown namespace", s)
	}
	for _, seg := range parts[1:] {
		if seg == "" {
			return Path{}, eris.Errorf("autofill: path %q has an empty segment", s)
		}
		if strings.IndexFunc(seg, unicode.IsSpace) >= 0 {
			return Path{}, eris.Errorf("autofill: path %q has whitespace in segment %q", s, seg)
		}
	}
	return Path{Namespace: ns, Segments: parts[1:]}, nil
}

// Extract resolves path against the user and project records. It reports
// false for a malformed path, a missing key, a non-record intermediate node
// or a null leaf. It never fails.
func Extract(path string, user, project model.Record) (any, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return p.Resolve(user, project)
}

// Resolve walks p through the matching record.
func (p Path) Resolve(user, project model.Record) (any, bool) {
	var node any
	switch p.Namespace {
	case NamespaceUser:
		node = map[string]any(user)
	case NamespaceProject:
		node = map[string]any(project)
	default:
		return nil, false
	}

	for _, seg := range p.Segments {
		m, ok := asMap(node)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case model.Record:
		return m, m != nil
	}
	return nil, false
}

// LeafPaths lists every path to a non-record value under rec, sorted. It is
// what the mapper offers the oracle as candidate sources.
func LeafPaths(namespace string, rec model.Record) []string {
	var out []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if k == "" || strings.ContainsAny(k, ". \t\n") {
				continue
			}
			p := prefix + "." + k
			if child, ok := asMap(v); ok && len(child) > 0 {
				walk(p, child)
				continue
			}
			out = append(out, p)
		}
	}
	walk(namespace, rec)
	sort.Strings(out)
	return out
}
