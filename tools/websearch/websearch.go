package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/config"
	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/pkg/httpclient"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/schema"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/toolgate/utils"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "websearch")

const ToolName = "search_web"

const (
	DefaultBaseURL = "https://www.google.com/search"
	DefaultLocale  = "en"

	DefaultCooldown         = 500 * time.Millisecond
	DefaultBreakerThreshold = 3
	DefaultBreakerWindow    = time.Minute

	MinResults  = 1
	MaxResults  = 10
	QueryMaxLen = 500

	// maxPageBytes bounds how much of the page is parsed.
	maxPageBytes = 2 << 20
)

// The source serves HTML meant for browsers; a realistic identification
// header keeps it from rejecting the request outright.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Query represents the tool input.
type Query struct {
	Query      string `json:"query" yaml:"query" validate:"required,max=500" jsonschema:"title=Query,description=The query to search the web for."`
	NumResults int    `json:"num_results,omitempty" yaml:"num_results,omitempty" jsonschema:"title=NumResults,description=Number of results to return (1-10)."`
}

// Result is one extracted search result.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Response is the payload returned on success. An empty result list is
// a legitimate outcome; Advisory is set when the source could not be
// used and the caller should try the chat tool instead.
type Response struct {
	Results  []Result `json:"results"`
	Query    string   `json:"query"`
	Advisory string   `json:"advisory,omitempty"`
}

// Tool obtains search results by scraping a source built for browsers.
// Fetch and parse failures are absorbed into a fallback response, never
// escalated: an unusable source is a business outcome, not a fault.
type Tool struct {
	name        string
	description string
	funcParams  any

	baseURL    string
	locale     string
	userAgents []string
	uaCursor   atomic.Uint32

	client *httpclient.Client
	guard  *guard
	sleep  httpclient.SleepFunc
}

var _ tools.Tool[Query, Response] = (*Tool)(nil)

// Option configures the Tool.
type Option func(*Tool)

// WithClock replaces the time source for the throttle and breaker.
func WithClock(now func() time.Time) Option {
	return func(t *Tool) {
		t.guard.now = now
	}
}

// WithSleep replaces the throttle sleep, used by tests to avoid timers.
func WithSleep(fn httpclient.SleepFunc) Option {
	return func(t *Tool) { t.sleep = fn }
}

// New returns the web search tool.
func New(cfg *config.Search, client *httpclient.Client, opts ...Option) (*Tool, error) {
	sc, err := schema.New(reflect.TypeOf(Query{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	if cfg == nil {
		cfg = &config.Search{}
	}

	cooldown := DefaultCooldown
	if cfg.CooldownMS > 0 {
		cooldown = time.Duration(cfg.CooldownMS) * time.Millisecond
	}
	window := DefaultBreakerWindow
	if cfg.BreakerWindowSec > 0 {
		window = time.Duration(cfg.BreakerWindowSec) * time.Second
	}
	threshold := values.NumbersCoalesce(cfg.BreakerThreshold, DefaultBreakerThreshold)

	t := &Tool{
		name:        ToolName,
		description: "Searches the web and returns titles, snippets and URLs.",
		funcParams:  sc.Parameters,
		baseURL:     values.StringsCoalesce(cfg.BaseURL, DefaultBaseURL),
		locale:      values.StringsCoalesce(cfg.Locale, DefaultLocale),
		userAgents:  cfg.UserAgents,
		client:      client,
		guard:       newGuard(cooldown, window, threshold, nil),
		sleep:       nil,
	}
	if len(t.userAgents) == 0 {
		t.userAgents = defaultUserAgents
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() any {
	return t.funcParams
}

// Run executes the search pipeline: throttle, fetch, parse, fallback.
func (t *Tool) Run(ctx context.Context, req *Query) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, gateway.NewError(gateway.KindValidation, "query cannot be empty")
	}
	if len(query) > QueryMaxLen {
		return nil, gateway.Errorf(gateway.KindValidation, "query too long (max %d chars)", QueryMaxLen)
	}
	query = utils.SanitizeText(query)
	num := clampResults(req.NumResults)

	if t.guard.open() {
		logger.ContextKV(ctx, xlog.DEBUG, "status", "breaker_open", "query", utils.Truncate(query, 50))
		metricskey.StatsSearchFallbacks.IncrCounter(1, t.name)
		return t.fallback(query), nil
	}

	if wait := t.guard.reserve(); wait > 0 {
		if err := t.sleepFor(ctx, wait); err != nil {
			// deadline elapsed waiting for the throttle slot
			return t.fallback(query), nil
		}
	}

	resp, err := t.fetch(ctx, query, num)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "status", "fetch_failed", "err", err.Error())
		t.recordBlock()
		metricskey.StatsSearchFallbacks.IncrCounter(1, t.name)
		return t.fallback(query), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.ContextKV(ctx, xlog.WARNING, "status", "fetch_status", "code", resp.StatusCode)
		t.recordBlock()
		metricskey.StatsSearchFallbacks.IncrCounter(1, t.name)
		return t.fallback(query), nil
	}

	// a marker only counts as blocking when nothing was parsed;
	// result snippets can legitimately mention those phrases
	results, blocked := parsePage(io.LimitReader(resp.Body, maxPageBytes), num)
	if blocked && len(results) == 0 {
		logger.ContextKV(ctx, xlog.WARNING, "status", "block_page", "query", utils.Truncate(query, 50))
		t.recordBlock()
		metricskey.StatsSearchFallbacks.IncrCounter(1, t.name)
		return t.fallback(query), nil
	}

	t.guard.recordSuccess()
	if results == nil {
		results = []Result{}
	}
	return &Response{
		Results: results,
		Query:   query,
	}, nil
}

// Invoke implements tools.ITool.
func (t *Tool) Invoke(ctx context.Context, input string) *gateway.Result {
	var req Query
	if err := tools.DecodeInput(input, &req); err != nil {
		return gateway.ResultFromError(err)
	}
	resp, err := t.Run(ctx, &req)
	if err != nil {
		return gateway.ResultFromError(err)
	}
	return gateway.Success(resp)
}

func (t *Tool) fetch(ctx context.Context, query string, num int) (*http.Response, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base URL")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	q.Set("hl", t.locale)
	u.RawQuery = q.Encode()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	hreq.Header.Set("User-Agent", t.nextUserAgent())
	hreq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	hreq.Header.Set("Accept-Language", "en-US,en;q=0.5")

	return t.client.Do(ctx, hreq)
}

func (t *Tool) nextUserAgent() string {
	n := t.uaCursor.Add(1)
	return t.userAgents[int(n-1)%len(t.userAgents)]
}

func (t *Tool) recordBlock() {
	metricskey.StatsSearchBlocked.IncrCounter(1, t.name)
	if t.guard.recordBlock() {
		logger.KV(xlog.WARNING, "status", "breaker_tripped", "window", t.guard.window.String())
		metricskey.StatsSearchBreakerTripped.IncrCounter(1, t.name)
	}
}

func (t *Tool) fallback(query string) *Response {
	return &Response{
		Results: []Result{},
		Query:   query,
		Advisory: fmt.Sprintf(
			"Web search is currently limited. Try the %q tool to ask about %q instead.",
			"chat", query),
	}
}

// clampResults clamps the requested result count to [MinResults, MaxResults];
// out-of-range values are clamped, not rejected.
func clampResults(n int) int {
	if n < MinResults {
		return MinResults
	}
	if n > MaxResults {
		return MaxResults
	}
	return n
}

func (t *Tool) sleepFor(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
