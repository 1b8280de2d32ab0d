// internal/formschema/schema.go
package formschema

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind is the closed set of question types the extractor can infer.
type Kind int

const (
	KindUnknown Kind = iota
	KindSingleChoice
	KindMultiChoice
	KindDropdown
	KindShortText
	KindLongText
	KindLinearScale
	KindDate
	KindTime
)

var kindNames = map[Kind]string{
	KindSingleChoice: "single-choice",
	KindMultiChoice:  "multi-choice",
	KindDropdown:     "dropdown-single-choice",
	KindShortText:    "short-text",
	KindLongText:     "long-text",
	KindLinearScale:  "linear-scale",
	KindDate:         "date",
	KindTime:         "time",
}

// legacyKindNames maps the tags written by older cache files onto kinds.
var legacyKindNames = map[string]Kind{
	"radio":     KindSingleChoice,
	"checkbox":  KindMultiChoice,
	"dropdown":  KindDropdown,
	"text":      KindShortText,
	"paragraph": KindLongText,
	"scale":     KindLinearScale,
}

// AllKinds lists every valid kind in classification priority order.
func AllKinds() []Kind {
	return []Kind{
		KindSingleChoice, KindMultiChoice, KindDropdown, KindShortText,
		KindLongText, KindLinearScale, KindDate, KindTime,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsClosedDomain reports whether answers must come from the question's option list.
func (k Kind) IsClosedDomain() bool {
	switch k {
	case KindSingleChoice, KindMultiChoice, KindDropdown, KindLinearScale:
		return true
	}
	return false
}

// ParseKind resolves a canonical or legacy kind tag.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	if k, ok := legacyKindNames[s]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("unknown question kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("cannot marshal question kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Question is one answerable field of the form.
type Question struct {
	// FieldID is the key the receiving endpoint associates with this question.
	FieldID string   `json:"entry_id" yaml:"entry_id"`
	Kind    Kind     `json:"type" yaml:"type"`
	Options []string `json:"options" yaml:"options"`
}

// Schema is the inferred structure of a single form. It is safe to persist and
// reuse; the anti-spam token is an opaque string captured at extraction time.
type Schema struct {
	SubmissionTarget  string     `json:"action_url" yaml:"action_url"`
	AntiSpamToken     string     `json:"fbzx" yaml:"fbzx"`
	PageSequenceToken string     `json:"page_history,omitempty" yaml:"page_history,omitempty"`
	Questions         []Question `json:"questions" yaml:"questions"`

	FormURL     string    `json:"form_url,omitempty" yaml:"form_url,omitempty"`
	ExtractedAt time.Time `json:"extracted_at,omitempty" yaml:"extracted_at,omitempty"`
}

var (
	ErrMissingTarget = errors.New("schema has no absolute submission target")
	ErrMissingToken  = errors.New("schema has no anti-spam token")
)

// Validate checks the invariants every persisted or freshly extracted schema must hold.
func (s *Schema) Validate() error {
	if s == nil {
		return errors.New("schema is nil")
	}
	u, err := url.Parse(s.SubmissionTarget)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrMissingTarget, s.SubmissionTarget)
	}
	if strings.TrimSpace(s.AntiSpamToken) == "" {
		return ErrMissingToken
	}
	for i, q := range s.Questions {
		if q.FieldID == "" {
			return fmt.Errorf("question %d has an empty field id", i)
		}
		if _, ok := kindNames[q.Kind]; !ok {
			return fmt.Errorf("question %s has invalid kind %d", q.FieldID, int(q.Kind))
		}
	}
	return nil
}

// CountByKind tallies questions per kind, used for reporting.
func (s *Schema) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, q := range s.Questions {
		counts[q.Kind]++
	}
	return counts
}
