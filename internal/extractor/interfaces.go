// internal/extractor/interfaces.go
package extractor

import "time"

// Element is an opaque handle to a rendered DOM element. Implementations are
// backed by a live browser (internal/browser) or a parsed document (internal/dom).
type Element interface {
	// FindAll returns the descendants of the element matching a CSS selector,
	// in document order. No matches is not an error.
	FindAll(selector string) ([]Element, error)
	// Attr reads a named attribute.
	Attr(name string) (string, bool)
	// SelectOptions returns the value of every option of a native select
	// control, in order. Options without a value attribute report their text.
	SelectOptions() ([]string, error)
}

// Document is the root of a loaded page.
type Document interface {
	Element
	// WaitFor blocks until the selector matches at least one element or the
	// timeout elapses.
	WaitFor(selector string, timeout time.Duration) error
}
