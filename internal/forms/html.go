package forms

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skippedInputTypes = map[string]bool{
	"hidden": true, "submit": true, "button": true, "reset": true, "image": true,
}

// HTMLExtractor reads the controls of an online permit form.
type HTMLExtractor struct{}

// ExtractFields walks every input, select and textarea in document order.
// Radio buttons and repeated checkboxes sharing a name become one field with
// options.
func (HTMLExtractor) ExtractFields(_ context.Context, raw *RawForm) ([]RawField, error) {
	doc, err := html.Parse(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, eris.Wrap(err, "forms: parse html")
	}

	labels := make(map[string]string)
	collectLabels(doc, labels)

	var fields []RawField
	index := make(map[string]int)
	walk(doc, func(n *html.Node) bool {
		f, ok := controlField(n, labels)
		if !ok {
			return true
		}
		if i, seen := index[f.Name]; seen {
			fields[i].Options = appendUnique(fields[i].Options, f.Options...)
			fields[i].Required = fields[i].Required || f.Required
			return false
		}
		index[f.Name] = len(fields)
		fields = append(fields, f)
		return false
	})
	return fields, nil
}

func controlField(n *html.Node, labels map[string]string) (RawField, bool) {
	if n.Type != html.ElementNode {
		return RawField{}, false
	}

	var f RawField
	switch n.DataAtom {
	case atom.Input:
		f.Type = strings.ToLower(attr(n, "type"))
		if f.Type == "" {
			f.Type = "text"
		}
		if skippedInputTypes[f.Type] {
			return RawField{}, false
		}
		if f.Type == "radio" || f.Type == "checkbox" {
			if v := attr(n, "value"); v != "" && v != "on" {
				opt := labels[attr(n, "id")]
				if opt == "" {
					opt = wrappingLabel(n)
				}
				if opt == "" {
					opt = v
				}
				f.Options = []string{opt}
			}
		}
	case atom.Select:
		f.Type = "select"
		f.Options = selectOptions(n)
	case atom.Textarea:
		f.Type = "textarea"
	default:
		return RawField{}, false
	}

	id := attr(n, "id")
	f.Name = attr(n, "name")
	if f.Name == "" {
		f.Name = id
	}
	if f.Name == "" {
		return RawField{}, false
	}

	// A grouped control's own label names its option, not the field.
	var label string
	if f.Type == "radio" || (f.Type == "checkbox" && len(f.Options) > 0) {
		label = groupLabel(n)
	} else {
		label = labels[id]
		if label == "" {
			label = wrappingLabel(n)
		}
	}
	if label == "" {
		label = firstAttr(n, "aria-label", "title", "placeholder")
	}
	label, starred := cleanLabel(label)
	if label == "" {
		label = humanize(f.Name)
	}

	f.Label = label
	f.Required = starred || hasAttr(n, "required") || attr(n, "aria-required") == "true"
	f.Pattern = attr(n, "pattern")
	f.Placeholder = attr(n, "placeholder")
	f.HelpText = strings.TrimSpace(attr(n, "title"))
	if f.HelpText == f.Label {
		f.HelpText = ""
	}
	if ml, err := strconv.Atoi(attr(n, "maxlength")); err == nil && ml > 0 {
		f.MaxLength = ml
	}
	return f, true
}

// collectLabels maps element ids to the text of <label for="id">.
func collectLabels(doc *html.Node, labels map[string]string) {
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Label {
			if target := attr(n, "for"); target != "" {
				labels[target] = nodeText(n)
			}
		}
		return true
	})
}

// wrappingLabel returns the text of a <label> ancestor.
func wrappingLabel(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Label {
			return nodeText(p)
		}
		if p.DataAtom == atom.Form || p.DataAtom == atom.Body {
			return ""
		}
	}
	return ""
}

// groupLabel returns the <legend> of an enclosing fieldset.
func groupLabel(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode || p.DataAtom != atom.Fieldset {
			continue
		}
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Legend {
				return nodeText(c)
			}
		}
		return ""
	}
	return ""
}

func selectOptions(n *html.Node) []string {
	var opts []string
	walk(n, func(c *html.Node) bool {
		if c.Type != html.ElementNode || c.DataAtom != atom.Option {
			return true
		}
		text := nodeText(c)
		if text == "" {
			text = attr(c, "value")
		}
		if text != "" && attr(c, "value") != "" {
			opts = append(opts, text)
		}
		return false
	})
	return opts
}

// nodeText returns the visible text under n, skipping form controls and
// scripts, with whitespace collapsed.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.TextNode:
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		case c.Type == html.ElementNode:
			switch c.DataAtom {
			case atom.Select, atom.Textarea, atom.Script, atom.Style:
				return false
			}
		}
		return true
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}

// cleanLabel strips trailing colons and required markers. starred reports a
// '*' or "(required)" marker.
func cleanLabel(s string) (label string, starred bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if i := strings.Index(lower, "(required)"); i >= 0 {
		s = s[:i] + s[i+len("(required)"):]
		starred = true
	}
	if strings.Contains(s, "*") {
		s = strings.ReplaceAll(s, "*", "")
		starred = true
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ": ")
	return s, starred
}

func humanize(name string) string {
	name = strings.NewReplacer("_", " ", "-", " ", "[", " ", "]", " ", ".", " ").Replace(name)
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// pageLinks summarizes an HTML page for the scraper.
type pageLinks struct {
	hasInputs bool
	pdf       string
}

// scanPage reports whether a page has form controls and the first linked PDF,
// resolved against base.
func scanPage(content []byte, base string) pageLinks {
	var out pageLinks
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return out
	}
	baseURL, _ := url.Parse(base)

	walk(doc, func(n *html.Node) bool {
		if _, ok := controlField(n, nil); ok {
			out.hasInputs = true
		}
		if out.pdf == "" && n.Type == html.ElementNode && n.DataAtom == atom.A {
			href := attr(n, "href")
			u, err := url.Parse(href)
			if err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
				if baseURL != nil {
					u = baseURL.ResolveReference(u)
				}
				out.pdf = u.String()
			}
		}
		return true
	})
	return out
}

// walk visits n and its descendants depth first. fn returns false to skip a
// node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func firstAttr(n *html.Node, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attr(n, k)); v != "" {
			return v
		}
	}
	return ""
}

func appendUnique(list []string, add ...string) []string {
	for _, a := range add {
		found := false
		for _, l := range list {
			if l == a {
				found = true
				break
			}
		}
		if !found {
			list = append(list, a)
		}
	}
	return list
}
