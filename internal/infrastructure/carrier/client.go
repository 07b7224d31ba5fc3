package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"go.uber.org/zap"
)

const (
	ordersEndpoint   = "/pedidos/vendas"
	invoicesEndpoint = "/nfe"
	labelsEndpoint   = "/logisticas/etiquetas"
)

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL string
	// Retry applies to detail and label requests. Listing pages are never retried.
	Retry  httpclient.RetryPolicy
	Tokens map[int64]string
	Logger *zap.Logger
}

// Client talks to the marketplace/carrier API on behalf of several stores,
// each authenticated with its own bearer token.
type Client struct {
	http    *httpclient.Client
	fetcher *Fetcher
	baseURL string
	retry   httpclient.RetryPolicy
	logger  *zap.Logger

	mu     sync.RWMutex
	tokens map[int64]string
}

// NewClient creates a Client
func NewClient(http *httpclient.Client, fetcher *Fetcher, cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = httpclient.RetryPolicy{MaxRetries: httpclient.DefaultMaxRetries, BaseDelay: httpclient.DefaultBaseDelay}
	}
	c := &Client{
		http:    http,
		fetcher: fetcher,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retry:   cfg.Retry,
		logger:  cfg.Logger.Named("carrier"),
		tokens:  make(map[int64]string, len(cfg.Tokens)),
	}
	for id, tok := range cfg.Tokens {
		c.tokens[id] = tok
	}
	return c
}

// Stores returns the configured store ids in ascending order
func (c *Client) Stores() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int64, 0, len(c.tokens))
	for id := range c.tokens {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Client) token(storeID int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.tokens[storeID]
	if !ok || tok == "" {
		return "", fmt.Errorf("%w: store %d", ErrStoreNotConfigured, storeID)
	}
	return tok, nil
}

// PendingOrders lists orders of storeID in the given status. Records that
// fail to decode are logged and skipped.
func (c *Client) PendingOrders(ctx context.Context, storeID int64, status int) (iter.Seq[OrderSummary], error) {
	tok, err := c.token(storeID)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if status > 0 {
		query.Set("idsSituacoes[]", strconv.Itoa(status))
	}

	raw := c.fetcher.FetchAll(ctx, tok, ordersEndpoint, query)
	return func(yield func(OrderSummary) bool) {
		for rec := range raw {
			var s OrderSummary
			if err := json.Unmarshal(rec, &s); err != nil {
				c.logger.Warn("skipping undecodable order summary", zap.Int64("store_id", storeID), zap.Error(err))
				continue
			}
			if !yield(s) {
				return
			}
		}
	}, nil
}

// Order fetches one order detail
func (c *Client) Order(ctx context.Context, storeID, orderID int64) (*OrderDetail, error) {
	var out OrderDetail
	if err := c.detail(ctx, storeID, ordersEndpoint+"/"+itoa(orderID), nil, &out); err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	return &out, nil
}

// Invoice fetches one invoice detail
func (c *Client) Invoice(ctx context.Context, storeID, invoiceID int64) (*InvoiceDetail, error) {
	var out InvoiceDetail
	if err := c.detail(ctx, storeID, invoicesEndpoint+"/"+itoa(invoiceID), nil, &out); err != nil {
		return nil, fmt.Errorf("invoice %d: %w", invoiceID, err)
	}
	return &out, nil
}

// IssueLabel requests the shipping label of orderID and returns its link.
// The carrier decides whether the link is a PDF or a ZIP of ZPL files.
func (c *Client) IssueLabel(ctx context.Context, storeID, orderID int64) (*LabelLink, error) {
	query := url.Values{}
	query.Set("formato", "PDF")
	query.Add("idsVendas[]", itoa(orderID))

	var out []LabelLink
	if err := c.detail(ctx, storeID, labelsEndpoint, query, &out); err != nil {
		return nil, fmt.Errorf("label for order %d: %w", orderID, err)
	}
	for i := range out {
		if out[i].Link != "" {
			return &out[i], nil
		}
	}
	return nil, fmt.Errorf("order %d: %w", orderID, ErrNoLabel)
}

// detail performs one throttled GET and decodes the "data" envelope into out.
func (c *Client) detail(ctx context.Context, storeID int64, path string, query url.Values, out any) error {
	tok, err := c.token(storeID)
	if err != nil {
		return err
	}
	if err := c.fetcher.Throttle(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.http.Get(ctx, u, httpclient.Options{Headers: authHeaders(tok), Retry: &c.retry})
	if err != nil {
		return httpclient.Classify(err)
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil || len(envelope.Data) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidResponse, path)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, path, err)
	}
	return nil
}
