package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedServer serves pages of {"id": n} records. failPage, when positive,
// answers that page with 500.
func pagedServer(t *testing.T, pages [][]int, failPage int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("limite"))

		n, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		if n == failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var data []map[string]int
		if n >= 1 && n <= len(pages) {
			for _, id := range pages[n-1] {
				data = append(data, map[string]int{"id": id})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestFetcher(baseURL string) (*Fetcher, *[]time.Duration) {
	var waits []time.Duration
	client := httpclient.New(httpclient.Config{}, httpclient.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	f := NewFetcher(client, FetcherConfig{BaseURL: baseURL})
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return f, &waits
}

func collectIDs(t *testing.T, seq func(func(json.RawMessage) bool)) []int {
	t.Helper()
	var ids []int
	for rec := range seq {
		var v struct{ ID int }
		require.NoError(t, json.Unmarshal(rec, &v))
		ids = append(ids, v.ID)
	}
	return ids
}

func TestFetcher_FetchAll(t *testing.T) {
	srv, hits := pagedServer(t, [][]int{{1, 2}, {3}}, 0)
	f, waits := newTestFetcher(srv.URL)

	ids := collectIDs(t, f.FetchAll(context.Background(), "tok", "/pedidos/vendas", nil))

	assert.Equal(t, []int{1, 2, 3}, ids)
	assert.Equal(t, int32(3), hits.Load(), "two data pages and one empty page")
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, *waits, "one delay before every page")
}

func TestFetcher_FetchAll_PartialOnPageError(t *testing.T) {
	srv, hits := pagedServer(t, [][]int{{1, 2}, {3}, {4}}, 2)
	f, _ := newTestFetcher(srv.URL)

	ids := collectIDs(t, f.FetchAll(context.Background(), "tok", "/pedidos/vendas", nil))

	assert.Equal(t, []int{1, 2}, ids)
	assert.Equal(t, int32(2), hits.Load(), "failed page is not retried")
}

func TestFetcher_FetchAll_NotRestartable(t *testing.T) {
	srv, hits := pagedServer(t, [][]int{{1}}, 0)
	f, _ := newTestFetcher(srv.URL)

	seq := f.FetchAll(context.Background(), "tok", "/x", nil)
	assert.Equal(t, []int{1}, collectIDs(t, seq))
	assert.Empty(t, collectIDs(t, seq))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetcher_FetchAll_EarlyBreak(t *testing.T) {
	srv, hits := pagedServer(t, [][]int{{1, 2}, {3}}, 0)
	f, _ := newTestFetcher(srv.URL)

	for rec := range f.FetchAll(context.Background(), "tok", "/x", nil) {
		_ = rec
		break
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetcher_FetchAll_KeepsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "6", r.URL.Query().Get("idsSituacoes[]"))
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()
	f, _ := newTestFetcher(srv.URL)

	assert.Empty(t, collectIDs(t, f.FetchAll(context.Background(), "tok", "/x", map[string][]string{"idsSituacoes[]": {"6"}})))
}
