// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/formsurge/internal/extractor"
)

// DefaultQueryTimeout bounds a single DOM query against the live tab.
const DefaultQueryTimeout = 5 * time.Second

// Page is a rendered tab. It satisfies extractor.Document, so the extractor can
// walk the live DOM without knowing about CDP.
type Page struct {
	tabCtx       context.Context
	cancel       context.CancelFunc
	queryTimeout time.Duration

	url   string
	title string

	closeOnce sync.Once
	onClose   func()
}

var (
	_ extractor.Document = (*Page)(nil)
	_ extractor.Element  = (*nodeElement)(nil)
)

// URL is the location after navigation, including any redirects.
func (p *Page) URL() string { return p.url }

// Title is the document title at load time.
func (p *Page) Title() string { return p.title }

// Close closes the tab. Safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
}

// WaitFor blocks until selector matches a ready node or the timeout elapses.
func (p *Page) WaitFor(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%q did not appear within %s", selector, timeout)
		}
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return nil
}

// FindAll queries the whole document.
func (p *Page) FindAll(selector string) ([]extractor.Element, error) {
	return p.queryAll(selector, nil)
}

// Attr always reports false; the document node has no attributes.
func (p *Page) Attr(string) (string, bool) { return "", false }

// SelectOptions is not meaningful on the document.
func (p *Page) SelectOptions() ([]string, error) {
	return nil, errors.New("document is not a select element")
}

func (p *Page) queryAll(selector string, from *cdp.Node) ([]extractor.Element, error) {
	ctx, cancel := context.WithTimeout(p.tabCtx, p.queryTimeout)
	defer cancel()

	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}

	out := make([]extractor.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &nodeElement{page: p, node: n})
	}
	return out, nil
}

// nodeElement is a live DOM node inside a Page.
type nodeElement struct {
	page *Page
	node *cdp.Node
}

func (e *nodeElement) FindAll(selector string) ([]extractor.Element, error) {
	return e.page.queryAll(selector, e.node)
}

func (e *nodeElement) Attr(name string) (string, bool) {
	return e.node.Attribute(name)
}

// SelectOptions reads each option's value attribute, falling back to its text.
func (e *nodeElement) SelectOptions() ([]string, error) {
	if !strings.EqualFold(e.node.LocalName, "select") {
		return nil, fmt.Errorf("element <%s> is not a select", e.node.LocalName)
	}
	options, err := e.page.queryAll("option", e.node)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(options))
	for _, opt := range options {
		optNode := opt.(*nodeElement).node
		if v, ok := optNode.Attribute("value"); ok {
			values = append(values, v)
			continue
		}
		text, err := e.page.nodeText(optNode)
		if err != nil {
			return nil, err
		}
		values = append(values, strings.TrimSpace(text))
	}
	return values, nil
}

func (p *Page) nodeText(n *cdp.Node) (string, error) {
	ctx, cancel := context.WithTimeout(p.tabCtx, p.queryTimeout)
	defer cancel()
	var text string
	if err := chromedp.Run(ctx, chromedp.Text([]cdp.NodeID{n.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("reading option text: %w", err)
	}
	return text, nil
}
