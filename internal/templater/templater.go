// Package templater fills `${name}` placeholders in static XML fragment
// templates, injecting a message_id from a counter shared across every
// Templater a Messenger owns.
package templater

import (
	"embed"
	"fmt"
	"strings"
	"sync/atomic"
)

//go:embed templates/*.xml
var defaultTemplates embed.FS

// Counter is a process-wide monotonically increasing source of MessageId
// values. Holes in the sequence are permitted; only uniqueness is required, so a
// single shared Counter is passed to every Templater a Messenger builds.
type Counter struct {
	n atomic.Uint64
}

// Next returns a fresh value, starting at 0 and never repeating for the
// lifetime of the process.
func (c *Counter) Next() uint64 {
	return c.n.Add(1) - 1
}

// Templater fills out one template file.
type Templater struct {
	raw      string
	defaults map[string]string
	counter  *Counter
}

// LoadEmbedded reads filename from the templates bundled into the binary.
// Config always names a template by the filename it ships under
// templates/; this is the only lookup path, matching the original
// implementation's use of a package resource rather than an arbitrary
// filesystem path.
func LoadEmbedded(filename string) (string, error) {
	b, err := defaultTemplates.ReadFile("templates/" + filename)
	if err != nil {
		return "", fmt.Errorf("templater: load %q: %w", filename, err)
	}
	return string(b), nil
}

// New creates a Templater over an already-loaded template body. defaults is
// the static mapping the configuration supplies for this template; it may
// be nil.
func New(body string, defaults map[string]string, counter *Counter) *Templater {
	if defaults == nil {
		defaults = map[string]string{}
	}
	return &Templater{raw: body, defaults: defaults, counter: counter}
}

// Fill substitutes `${name}` placeholders using the union
// defaults ∪ extra ∪ {message_id: next(counter)}, later keys overriding
// earlier ones except that message_id always comes from the counter. It
// returns the UTF-8 encoded result, or an error if any placeholder cannot
// be resolved.
func (t *Templater) Fill(extra map[string]string) ([]byte, error) {
	merged := make(map[string]string, len(t.defaults)+len(extra)+1)
	for k, v := range t.defaults {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	merged["message_id"] = fmt.Sprintf("%d", t.counter.Next())

	var out strings.Builder
	out.Grow(len(t.raw))
	rest := t.raw
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end == -1 {
			return nil, fmt.Errorf("templater: unterminated placeholder in template")
		}
		end += start
		out.WriteString(rest[:start])
		name := rest[start+2 : end]
		value, ok := merged[name]
		if !ok {
			return nil, fmt.Errorf("templater: unresolved placeholder %q", name)
		}
		out.WriteString(value)
		rest = rest[end+1:]
	}
	return []byte(out.String()), nil
}
