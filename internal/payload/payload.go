// internal/payload/payload.go
package payload

import (
	"net/url"
	"strings"

	"github.com/xkilldash9x/formsurge/internal/formschema"
	"github.com/xkilldash9x/formsurge/internal/synth"
)

const (
	AntiSpamKey     = "fbzx"
	PageSequenceKey = "pageHistory"

	// ContentType is the encoding the receiving endpoint expects.
	ContentType = "application/x-www-form-urlencoded"
)

// Pair is one submitted key/value.
type Pair struct {
	Key   string
	Value string
}

// Payload is an ordered list of pairs. Keys may repeat; a multi-choice answer
// contributes one pair per selected option.
type Payload []Pair

// Len returns the number of pairs.
func (p Payload) Len() int { return len(p) }

// Keys returns the keys in order, duplicates included.
func (p Payload) Keys() []string {
	keys := make([]string, len(p))
	for i, pair := range p {
		keys[i] = pair.Key
	}
	return keys
}

// Count returns how many pairs carry key.
func (p Payload) Count(key string) int {
	n := 0
	for _, pair := range p {
		if pair.Key == key {
			n++
		}
	}
	return n
}

// Values returns a url.Values view. Key order is lost; value order per key is kept.
func (p Payload) Values() url.Values {
	v := make(url.Values, len(p))
	for _, pair := range p {
		v.Add(pair.Key, pair.Value)
	}
	return v
}

// Encode serializes the payload as a urlencoded body, preserving pair order.
func (p Payload) Encode() string {
	var b strings.Builder
	for i, pair := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pair.Value))
	}
	return b.String()
}

// Builder assembles a fresh payload per submission attempt.
type Builder struct {
	synth *synth.Synthesizer
}

// NewBuilder creates a Builder drawing answers from s.
func NewBuilder(s *synth.Synthesizer) *Builder {
	return &Builder{synth: s}
}

// Build emits the anti-spam token, the optional page sequence token, then the
// synthesized answers in question order. Values are not re-checked against
// the option list.
func (b *Builder) Build(schema *formschema.Schema) Payload {
	p := make(Payload, 0, len(schema.Questions)+2)
	p = append(p, Pair{Key: AntiSpamKey, Value: schema.AntiSpamToken})
	if schema.PageSequenceToken != "" {
		p = append(p, Pair{Key: PageSequenceKey, Value: schema.PageSequenceToken})
	}

	for _, q := range schema.Questions {
		for _, v := range b.synth.Synthesize(q.Kind, q.Options) {
			p = append(p, Pair{Key: q.FieldID, Value: v})
		}
	}
	return p
}
