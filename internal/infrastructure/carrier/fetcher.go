package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"go.uber.org/zap"
)

const (
	// PageSize is the fixed number of records requested per page.
	PageSize = 100
	// DefaultPageDelay is the fixed throttle before every page and detail request.
	DefaultPageDelay = time.Second

	defaultMaxPages = 1000
)

// FetcherConfig configures a Fetcher
type FetcherConfig struct {
	BaseURL   string
	PageDelay time.Duration
	MaxPages  int
	Logger    *zap.Logger
}

// Fetcher walks page-based listing endpoints of the carrier API. It inserts
// an unconditional fixed delay before each request; calls are sequential so
// the delay alone bounds the request rate.
type Fetcher struct {
	client   *httpclient.Client
	baseURL  string
	delay    time.Duration
	maxPages int
	sleep    httpclient.Sleeper
	logger   *zap.Logger
}

// NewFetcher creates a Fetcher on top of client
func NewFetcher(client *httpclient.Client, cfg FetcherConfig) *Fetcher {
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = DefaultPageDelay
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Fetcher{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		delay:    cfg.PageDelay,
		maxPages: cfg.MaxPages,
		sleep:    sleepContext,
		logger:   cfg.Logger.Named("carrier_fetcher"),
	}
}

// Throttle waits the fixed inter-request delay.
func (f *Fetcher) Throttle(ctx context.Context) error {
	return f.sleep(ctx, f.delay)
}

type page struct {
	Data []json.RawMessage `json:"data"`
}

// FetchAll lazily yields every record of endpoint, page by page from page 1,
// until a page comes back empty. A failing page is logged and ends the
// sequence, so callers get the records fetched so far. The sequence can be
// ranged only once; later ranges yield nothing.
func (f *Fetcher) FetchAll(ctx context.Context, token, endpoint string, query url.Values) iter.Seq[json.RawMessage] {
	var consumed atomic.Bool
	return func(yield func(json.RawMessage) bool) {
		if consumed.Swap(true) {
			return
		}
		for n := 1; n <= f.maxPages; n++ {
			if err := f.Throttle(ctx); err != nil {
				f.logger.Warn("listing interrupted", zap.String("endpoint", endpoint), zap.Int("page", n), zap.Error(err))
				return
			}

			records, err := f.fetchPage(ctx, token, endpoint, query, n)
			if err != nil {
				f.logger.Error("page fetch failed, returning partial results",
					zap.String("endpoint", endpoint),
					zap.Int("page", n),
					zap.Error(err),
				)
				return
			}
			if len(records) == 0 {
				return
			}
			for _, r := range records {
				if !yield(r) {
					return
				}
			}
		}
		f.logger.Warn("listing stopped at page limit", zap.String("endpoint", endpoint), zap.Int("max_pages", f.maxPages))
	}
}

func (f *Fetcher) fetchPage(ctx context.Context, token, endpoint string, query url.Values, n int) ([]json.RawMessage, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("pagina", strconv.Itoa(n))
	q.Set("limite", strconv.Itoa(PageSize))

	resp, err := f.client.Get(ctx, f.baseURL+endpoint+"?"+q.Encode(), httpclient.Options{
		Headers: authHeaders(token),
	})
	if err != nil {
		return nil, httpclient.Classify(err)
	}

	var p page
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("%w: decode page %d: %v", ErrInvalidResponse, n, err)
	}
	return p.Data, nil
}

func authHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Accept":        "application/json",
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
