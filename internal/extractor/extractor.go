// internal/extractor/extractor.go
package extractor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/formschema"
)

const (
	// FieldPrefix is the name prefix carried by every answerable input.
	FieldPrefix = "entry."
	// sentinelSeparator splits a field name from client-side suffixes such as "_sentinel".
	sentinelSeparator = "_"

	AntiSpamTokenName     = "fbzx"
	PageSequenceTokenName = "pageHistory"

	formSelector      = "form"
	containerSelector = `div[role="listitem"]`
	fieldSelector     = `[name^="entry."]`

	DefaultReadyTimeout = 15 * time.Second
)

// optionReader pulls the answer domain out of the elements that matched a rule.
type optionReader func(matched []Element) ([]string, error)

// rule maps a presence check to a kind. Rules are evaluated in slice order and
// the first check with at least one match wins.
type rule struct {
	selector string
	kind     formschema.Kind
	options  optionReader
}

var classificationRules = []rule{
	{selector: `div[role="radio"]`, kind: formschema.KindSingleChoice, options: labeledOptions},
	{selector: `div[role="checkbox"]`, kind: formschema.KindMultiChoice, options: labeledOptions},
	{selector: "select", kind: formschema.KindDropdown, options: selectOptions},
	{selector: `input[type="text"]`, kind: formschema.KindShortText},
	{selector: "textarea", kind: formschema.KindLongText},
	{selector: `div[role="radiogroup"]`, kind: formschema.KindLinearScale, options: scaleOptions},
	{selector: `input[type="date"]`, kind: formschema.KindDate},
	{selector: `input[type="time"]`, kind: formschema.KindTime},
}

// Extractor turns rendered question containers into a form schema.
type Extractor struct {
	logger       *zap.Logger
	readyTimeout time.Duration
}

// New creates an Extractor. A non-positive readyTimeout falls back to DefaultReadyTimeout.
func New(logger *zap.Logger, readyTimeout time.Duration) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	return &Extractor{
		logger:       logger.Named("extractor"),
		readyTimeout: readyTimeout,
	}
}

// ExtractSchema reads the submission target, tokens and questions from a loaded
// page. Any failure to locate the form or the anti-spam token is fatal.
func (e *Extractor) ExtractSchema(doc Document, pageURL string) (*formschema.Schema, error) {
	if err := doc.WaitFor(formSelector, e.readyTimeout); err != nil {
		return nil, extractionFailed("waiting for form", err)
	}

	forms, err := doc.FindAll(formSelector)
	if err != nil {
		return nil, extractionFailed("locating form", err)
	}
	if len(forms) == 0 {
		return nil, extractionFailed("locating form", errors.New("no form element on page"))
	}

	action, _ := forms[0].Attr("action")
	target, err := resolveAction(pageURL, action)
	if err != nil {
		return nil, extractionFailed("resolving form action", err)
	}

	token, ok, err := namedValue(doc, AntiSpamTokenName)
	if err != nil {
		return nil, extractionFailed("reading anti-spam token", err)
	}
	if !ok || token == "" {
		return nil, extractionFailed("reading anti-spam token", fmt.Errorf("no %q input on page", AntiSpamTokenName))
	}

	pageHistory, _, err := namedValue(doc, PageSequenceTokenName)
	if err != nil {
		// Single-page forms omit it; a read failure degrades the same way.
		e.logger.Debug("Page sequence token unreadable.", zap.Error(err))
		pageHistory = ""
	}

	containers, err := doc.FindAll(containerSelector)
	if err != nil {
		return nil, extractionFailed("locating question containers", err)
	}

	schema := &formschema.Schema{
		SubmissionTarget:  target,
		AntiSpamToken:     token,
		PageSequenceToken: pageHistory,
		Questions:         e.Extract(containers),
		FormURL:           pageURL,
		ExtractedAt:       time.Now().UTC(),
	}
	if err := schema.Validate(); err != nil {
		return nil, extractionFailed("validating schema", err)
	}

	e.logger.Info("Form structure extracted.",
		zap.String("target", target),
		zap.Int("containers", len(containers)),
		zap.Int("questions", len(schema.Questions)),
	)
	return schema, nil
}

// Extract classifies each container in order. Containers without a field
// identity or a recognized input type are dropped.
func (e *Extractor) Extract(containers []Element) []formschema.Question {
	questions := make([]formschema.Question, 0, len(containers))
	for idx, container := range containers {
		q, ok, err := classify(container)
		if err != nil {
			e.logger.Debug("Skipping unreadable container.", zap.Int("index", idx), zap.Error(err))
			continue
		}
		if !ok {
			e.logger.Debug("Skipping unrecognized container.", zap.Int("index", idx))
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

func classify(container Element) (formschema.Question, bool, error) {
	fieldID, err := fieldIdentity(container)
	if err != nil || fieldID == "" {
		return formschema.Question{}, false, err
	}

	for _, r := range classificationRules {
		matched, err := container.FindAll(r.selector)
		if err != nil {
			return formschema.Question{}, false, fmt.Errorf("probing %s: %w", r.selector, err)
		}
		if len(matched) == 0 {
			continue
		}

		options := []string{}
		if r.options != nil {
			if options, err = r.options(matched); err != nil {
				return formschema.Question{}, false, fmt.Errorf("reading %s options: %w", r.kind, err)
			}
		}
		return formschema.Question{FieldID: fieldID, Kind: r.kind, Options: options}, true, nil
	}
	return formschema.Question{}, false, nil
}

// fieldIdentity returns the first prefixed field name, truncated at the sentinel separator.
func fieldIdentity(container Element) (string, error) {
	named, err := container.FindAll(fieldSelector)
	if err != nil {
		return "", fmt.Errorf("probing field identity: %w", err)
	}
	for _, el := range named {
		name, ok := el.Attr("name")
		if !ok || !strings.HasPrefix(name, FieldPrefix) {
			continue
		}
		id, _, _ := strings.Cut(name, sentinelSeparator)
		return id, nil
	}
	return "", nil
}

// labeledOptions reads data-value from each element, falling back to
// aria-label only when no element carries a data-value.
func labeledOptions(matched []Element) ([]string, error) {
	options := attrValues(matched, "data-value")
	if len(options) == 0 {
		options = attrValues(matched, "aria-label")
	}
	return options, nil
}

func selectOptions(matched []Element) ([]string, error) {
	values, err := matched[0].SelectOptions()
	if err != nil {
		return nil, err
	}
	options := make([]string, 0, len(values))
	for _, v := range values {
		// Empty values are "choose one" placeholders.
		if v != "" {
			options = append(options, v)
		}
	}
	return options, nil
}

func scaleOptions(matched []Element) ([]string, error) {
	var options []string
	for _, group := range matched {
		radios, err := group.FindAll(`div[role="radio"]`)
		if err != nil {
			return nil, err
		}
		options = append(options, attrValues(radios, "data-value")...)
	}
	if options == nil {
		options = []string{}
	}
	return options, nil
}

func attrValues(elements []Element, name string) []string {
	values := make([]string, 0, len(elements))
	for _, el := range elements {
		if v, ok := el.Attr(name); ok && v != "" {
			values = append(values, v)
		}
	}
	return values
}

func namedValue(doc Element, name string) (string, bool, error) {
	found, err := doc.FindAll(fmt.Sprintf(`[name=%q]`, name))
	if err != nil {
		return "", false, err
	}
	if len(found) == 0 {
		return "", false, nil
	}
	v, ok := found[0].Attr("value")
	return v, ok, nil
}

// resolveAction turns the form's action attribute into an absolute URL.
func resolveAction(pageURL, action string) (string, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return "", errors.New("form has no action attribute")
	}
	ref, err := url.Parse(action)
	if err != nil {
		return "", fmt.Errorf("invalid form action %q: %w", action, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("cannot resolve relative action %q against %q", action, pageURL)
	}
	return base.ResolveReference(ref).String(), nil
}
