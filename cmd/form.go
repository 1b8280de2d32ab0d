package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/browser"
	"github.com/xkilldash9x/formsurge/internal/browser/stealth"
	"github.com/xkilldash9x/formsurge/internal/config"
	"github.com/xkilldash9x/formsurge/internal/dom"
	"github.com/xkilldash9x/formsurge/internal/extractor"
	"github.com/xkilldash9x/formsurge/internal/formschema"
	"github.com/xkilldash9x/formsurge/internal/network"
	"github.com/xkilldash9x/formsurge/internal/store"
)

// schemaSource controls how a schema is obtained.
type schemaSource struct {
	refresh bool
	static  bool
}

// livePageOpener renders a page in Chrome. It returns the document, the final
// URL after redirects and a release func. Replaced in tests.
var livePageOpener = func(ctx context.Context, cfg config.BrowserConfig, formURL string, logger *zap.Logger) (extractor.Document, string, func(), error) {
	mgr, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return nil, "", nil, err
	}
	page, err := mgr.Open(ctx, formURL)
	if err != nil {
		shutdown(mgr, logger)
		return nil, "", nil, err
	}
	return page, page.URL(), func() {
		page.Close()
		shutdown(mgr, logger)
	}, nil
}

func shutdown(mgr *browser.Manager, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		logger.Warn("Error during browser manager shutdown", zap.Error(err))
	}
}

// newHTTPClient builds the shared session client from config.
func newHTTPClient(cfg *config.Config, logger *zap.Logger) (*network.Client, error) {
	cc, err := network.ClientConfigFromNetwork(cfg.Network, logger)
	if err != nil {
		return nil, err
	}
	return network.NewClient(cc)
}

// acquireSchema returns the cached schema for formURL, or extracts and caches
// a fresh one. Extraction failures are fatal and nothing is cached.
func acquireSchema(ctx context.Context, out io.Writer, cfg *config.Config, formURL string, src schemaSource, client *network.Client, logger *zap.Logger) (*formschema.Schema, error) {
	s, closeStore, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema store: %w", err)
	}
	defer closeStore()

	location := describeLocation(s, formURL)
	if !src.refresh {
		schema, err := s.Load(ctx, formURL)
		switch {
		case err == nil:
			fmt.Fprintf(out, "Loading cached form structure from %s\n", location)
			return schema, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	fmt.Fprintln(out, "Parsing form structure (one-time operation)...")
	schema, err := extractSchema(ctx, cfg, formURL, src.static, client, logger)
	if err != nil {
		return nil, err
	}
	schema.FormURL = formURL

	if err := s.Save(ctx, schema); err != nil {
		// The run can continue; the next one re-extracts.
		logger.Warn("Failed to cache form structure.", zap.Error(err))
	} else {
		fmt.Fprintf(out, "Form structure cached to %s\n", location)
	}
	return schema, nil
}

func extractSchema(ctx context.Context, cfg *config.Config, formURL string, static bool, client *network.Client, logger *zap.Logger) (*formschema.Schema, error) {
	ex := extractor.New(logger, cfg.Browser.ReadyTimeout)

	if static {
		doc, err := dom.Fetch(ctx, client, formURL, browserHeaders(cfg))
		if err != nil {
			return nil, &extractor.ExtractionError{Step: "loading page", Cause: err}
		}
		return ex.ExtractSchema(doc, formURL)
	}

	doc, pageURL, release, err := livePageOpener(ctx, cfg.Browser, formURL, logger)
	if err != nil {
		return nil, &extractor.ExtractionError{Step: "loading page", Cause: err}
	}
	defer release()
	if pageURL == "" {
		pageURL = formURL
	}
	return ex.ExtractSchema(doc, pageURL)
}

// browserHeaders is the header set used when fetching the page without Chrome.
func browserHeaders(cfg *config.Config) http.Header {
	h := http.Header{}
	h.Set("User-Agent", cfg.Browser.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", stealth.DefaultPersona.AcceptLanguage())
	return h
}

func describeLocation(s store.Store, formURL string) string {
	if fs, ok := s.(*store.FileStore); ok {
		return fs.Path(formURL)
	}
	return "form_schemas[" + store.KeyForURL(formURL) + "]"
}
