// internal/dom/document.go
package dom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/xkilldash9x/formsurge/internal/extractor"
)

// Doer is the subset of http.Client used to fetch pages.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Document is a parsed, static HTML page. It satisfies extractor.Document and is
// used both for server-rendered forms and as the in-memory tree in tests.
type Document struct {
	Element
}

// Element wraps a single goquery node.
type Element struct {
	sel *goquery.Selection
}

var (
	_ extractor.Document = (*Document)(nil)
	_ extractor.Element  = Element{}
)

// Parse builds a Document from an HTML reader.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{Element: Element{sel: doc.Selection}}, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(html string) (*Document, error) {
	return Parse(strings.NewReader(html))
}

// Fetch downloads a page and parses it without running any scripts.
func Fetch(ctx context.Context, client Doer, pageURL string, headers http.Header) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s returned status %d", pageURL, resp.StatusCode)
	}
	return Parse(resp.Body)
}

// WaitFor checks the selector once; a static page never changes.
func (d *Document) WaitFor(selector string, _ time.Duration) error {
	found, err := d.FindAll(selector)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("selector %q matched nothing", selector)
	}
	return nil
}

// Title returns the trimmed text of the page's <title>.
func (d *Document) Title() string {
	return strings.TrimSpace(d.sel.Find("title").First().Text())
}

func (e Element) FindAll(selector string) ([]extractor.Element, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	found := e.sel.FindMatcher(matcher)
	out := make([]extractor.Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Element{sel: s})
	})
	return out, nil
}

func (e Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e Element) SelectOptions() ([]string, error) {
	if !e.sel.Is("select") {
		return nil, fmt.Errorf("element is not a select control")
	}
	var values []string
	e.sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		if v, ok := opt.Attr("value"); ok {
			values = append(values, v)
			return
		}
		values = append(values, strings.TrimSpace(opt.Text()))
	})
	return values, nil
}
