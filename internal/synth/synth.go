// internal/synth/synth.go
package synth

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/xkilldash9x/formsurge/internal/formschema"
)

// Vocabulary is the fixed word list free-text answers are drawn from.
var Vocabulary = []string{
	"apple", "banana", "car", "dog", "energy", "finance", "goal", "happy",
	"investment", "job", "knowledge", "life", "money", "nature", "option",
	"plan", "quality", "return", "stock", "time", "value", "work", "xray",
	"young", "zebra",
}

const (
	minWords = 2
	maxWords = 5

	minYear = 2000
	maxYear = 2030
	// maxDay stays at 28 so every generated date exists in every month.
	maxDay = 28
)

// Synthesizer produces random, domain-valid answers. It is not safe for
// concurrent use; give each goroutine its own instance.
type Synthesizer struct {
	rng *rand.Rand
}

// New creates a Synthesizer drawing from src.
func New(src rand.Source) *Synthesizer {
	return &Synthesizer{rng: rand.New(src)}
}

// NewSeeded creates a reproducible Synthesizer. A zero seed picks one from the clock.
func NewSeeded(seed uint64) *Synthesizer {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Synthesize returns the values to submit for one question. Free-text, date
// and time kinds always yield exactly one value. Single-valued choice kinds
// yield one value, or none when the option list is empty. Multi-choice yields
// between one and max(1, len(options)/2) distinct options in option order.
func (s *Synthesizer) Synthesize(kind formschema.Kind, options []string) []string {
	switch kind {
	case formschema.KindShortText:
		return []string{s.ShortText()}
	case formschema.KindLongText:
		return []string{s.LongText()}
	case formschema.KindDate:
		return []string{s.Date()}
	case formschema.KindTime:
		return []string{s.Time()}
	case formschema.KindSingleChoice, formschema.KindDropdown, formschema.KindLinearScale:
		if choice, ok := s.Choice(options); ok {
			return []string{choice}
		}
		return nil
	case formschema.KindMultiChoice:
		return s.MultiChoice(options)
	}
	return nil
}

// ShortText joins 2-5 distinct vocabulary words with spaces.
func (s *Synthesizer) ShortText() string {
	n := minWords + s.rng.IntN(maxWords-minWords+1)
	perm := s.rng.Perm(len(Vocabulary))
	words := make([]string, n)
	for i := range words {
		words[i] = Vocabulary[perm[i]]
	}
	return strings.Join(words, " ")
}

// LongText is two short texts, each terminated with a period.
func (s *Synthesizer) LongText() string {
	return s.ShortText() + ". " + s.ShortText() + "."
}

// Date returns YYYY-MM-DD.
func (s *Synthesizer) Date() string {
	year := minYear + s.rng.IntN(maxYear-minYear+1)
	month := 1 + s.rng.IntN(12)
	day := 1 + s.rng.IntN(maxDay)
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// Time returns HH:MM on a 24 hour clock.
func (s *Synthesizer) Time() string {
	return fmt.Sprintf("%02d:%02d", s.rng.IntN(24), s.rng.IntN(60))
}

// Choice picks one option uniformly.
func (s *Synthesizer) Choice(options []string) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	return options[s.rng.IntN(len(options))], true
}

// MultiChoice picks a uniformly sized subset, capped at half the options.
func (s *Synthesizer) MultiChoice(options []string) []string {
	if len(options) == 0 {
		return []string{}
	}
	limit := max(1, len(options)/2)
	k := 1 + s.rng.IntN(limit)

	picked := s.rng.Perm(len(options))[:k]
	slices.Sort(picked)

	out := make([]string, k)
	for i, idx := range picked {
		out[i] = options[idx]
	}
	return out
}
