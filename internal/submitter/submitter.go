// internal/submitter/submitter.go
package submitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formsurge/internal/formschema"
	"github.com/xkilldash9x/formsurge/internal/payload"
)

// DefaultAccept mirrors what a desktop browser sends for a form post.
const DefaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

// maxSniffBytes bounds how much of a response is parsed for its title.
const maxSniffBytes = 1 << 20

// maxDrainBytes bounds how much unread body is discarded to keep a connection alive.
const maxDrainBytes = 4 << 20

// Doer is the subset of http.Client the driver needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Status classifies one submission attempt.
type Status int

const (
	// StatusSubmitted means the endpoint answered with a 2xx status.
	StatusSubmitted Status = iota
	// StatusRejected means the endpoint answered with any other status.
	StatusRejected
	// StatusFailed means no response was received.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result describes a single attempt.
type Result struct {
	Attempt    int
	Total      int
	Status     Status
	HTTPStatus int
	// Title is the <title> of the response page, when one could be read.
	Title    string
	Pairs    int
	Duration time.Duration
	Err      error
}

// Summary tallies a run.
type Summary struct {
	RunID     string
	Requested int
	Attempted int
	Succeeded int
	Rejected  int
	Failed    int
	Elapsed   time.Duration
}

func (s *Summary) record(r Result) {
	s.Attempted++
	switch r.Status {
	case StatusSubmitted:
		s.Succeeded++
	case StatusRejected:
		s.Rejected++
	default:
		s.Failed++
	}
}

// Options tunes pacing and the session identity.
type Options struct {
	// MinDelay and MaxDelay bound the uniform pause between attempts.
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxRate caps attempts per second. Zero disables the cap.
	MaxRate float64
	// Seed drives the pause jitter. Zero seeds from the clock.
	Seed uint64

	UserAgent      string
	AcceptLanguage string
	// Headers are added to every request after the defaults.
	Headers map[string]string

	// OnResult is called synchronously after every attempt.
	OnResult func(Result)
}

// Driver posts synthesized payloads one after another.
type Driver struct {
	client  Doer
	builder *payload.Builder
	opts    Options
	logger  *zap.Logger

	limiter *rate.Limiter
	rng     *rand.Rand
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Driver. builder must not be shared with another goroutine.
func New(client Doer, builder *payload.Builder, opts Options, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	d := &Driver{
		client:  client,
		builder: builder,
		opts:    opts,
		logger:  logger.Named("submitter"),
		rng:     rand.New(rand.NewPCG(seed, ^seed)),
		sleep:   sleepContext,
	}
	if opts.MaxRate > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.MaxRate), 1)
	}
	return d
}

// Run submits n responses to the schema's target. Individual failures are
// tallied and never stop the loop. If ctx is canceled, Run returns the partial
// summary together with the context error.
func (d *Driver) Run(ctx context.Context, schema *formschema.Schema, formURL string, n int) (summary Summary, err error) {
	summary = Summary{RunID: uuid.NewString(), Requested: n}
	if schema == nil {
		return summary, errors.New("no schema to submit")
	}
	if n < 0 {
		return summary, fmt.Errorf("submission count must not be negative, got %d", n)
	}

	start := time.Now()
	defer func() { summary.Elapsed = time.Since(start) }()

	logger := d.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("Starting submissions.",
		zap.Int("count", n),
		zap.String("target", schema.SubmissionTarget),
		zap.Int("questions", len(schema.Questions)),
	)

	headers := d.sessionHeaders(schema.SubmissionTarget, formURL)

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				logger.Warn("Context cancelled while waiting for rate limiter", zap.Error(err))
				return summary, contextError(ctx, err)
			}
		}

		body := d.builder.Build(schema)
		res := d.submit(ctx, schema.SubmissionTarget, headers, body)
		res.Attempt, res.Total = i, n
		summary.record(res)
		d.log(logger, res)
		if d.opts.OnResult != nil {
			d.opts.OnResult(res)
		}

		if res.Err != nil && ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if i < n {
			if err := d.sleep(ctx, d.jitter()); err != nil {
				return summary, err
			}
		}
	}

	logger.Info("Submissions finished.",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (d *Driver) submit(ctx context.Context, target string, headers http.Header, body payload.Payload) (res Result) {
	res.Pairs = body.Len()
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body.Encode()))
	if err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("failed to build request: %w", err)
		return res
	}
	req.Header = headers.Clone()

	resp, err := d.client.Do(req)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	defer drainAndClose(resp.Body)

	res.HTTPStatus = resp.StatusCode
	res.Title = sniffTitle(resp)
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		res.Status = StatusSubmitted
	} else {
		res.Status = StatusRejected
	}
	return res
}

func (d *Driver) log(logger *zap.Logger, res Result) {
	fields := []zap.Field{
		zap.Int("attempt", res.Attempt),
		zap.Int("of", res.Total),
		zap.Int("pairs", res.Pairs),
		zap.Duration("took", res.Duration),
	}
	switch res.Status {
	case StatusSubmitted:
		logger.Debug("Submission accepted.", append(fields, zap.Int("status", res.HTTPStatus), zap.String("title", res.Title))...)
	case StatusRejected:
		logger.Warn("Submission rejected.", append(fields, zap.Int("status", res.HTTPStatus))...)
	default:
		logger.Error("Submission failed.", append(fields, zap.Error(res.Err))...)
	}
}

// sessionHeaders builds the browser-like header set shared by every attempt.
func (d *Driver) sessionHeaders(target, formURL string) http.Header {
	h := http.Header{}
	h.Set("Accept", DefaultAccept)
	h.Set("Content-Type", payload.ContentType)
	if d.opts.UserAgent != "" {
		h.Set("User-Agent", d.opts.UserAgent)
	}
	lang := d.opts.AcceptLanguage
	if lang == "" {
		lang = "en-US,en;q=0.5"
	}
	h.Set("Accept-Language", lang)
	if origin := originOf(target); origin != "" {
		h.Set("Origin", origin)
	}
	if formURL != "" {
		h.Set("Referer", formURL)
	}
	for k, v := range d.opts.Headers {
		h.Set(k, v)
	}
	return h
}

func (d *Driver) jitter() time.Duration {
	span := d.opts.MaxDelay - d.opts.MinDelay
	if span <= 0 {
		return d.opts.MinDelay
	}
	return d.opts.MinDelay + time.Duration(d.rng.Int64N(int64(span)+1))
}

func originOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func sniffTitle(resp *http.Response) string {
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxSniffBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// drainAndClose reads what is left of body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	_ = body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
