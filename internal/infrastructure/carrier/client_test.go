package carrier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderJSON = `{"data":{
	"id": 9001,
	"numero": 12345,
	"numeroLoja": "",
	"loja": {"id": 204},
	"contato": {"nome": "Maria Silva"},
	"itens": [
		{"codigo": "SKU-B", "descricao": "Caneca", "quantidade": 2},
		{"codigo": "SKU-A", "descricao": "Camiseta", "quantidade": 1}
	],
	"notaFiscal": {"id": 777},
	"transporte": {"etiqueta": {
		"nome": "", "endereco": "Rua A", "numero": "", "bairro": "Centro",
		"complemento": "", "municipio": "Campinas", "uf": "SP", "cep": "13000-000"
	}}
}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	noWait := func(context.Context, time.Duration) error { return nil }
	hc := httpclient.New(httpclient.Config{}, httpclient.WithSleeper(noWait))
	f := NewFetcher(hc, FetcherConfig{BaseURL: srv.URL})
	f.sleep = noWait
	return NewClient(hc, f, ClientConfig{BaseURL: srv.URL, Tokens: map[int64]string{204: "tok"}})
}

func TestClient_Order(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pedidos/vendas/9001", r.URL.Path)
		fmt.Fprint(w, orderJSON)
	})

	detail, err := c.Order(context.Background(), 204, 9001)
	require.NoError(t, err)

	order, items := detail.ToDomain(204)
	assert.Equal(t, "12345", order.OrderNumber)
	assert.Equal(t, "Maria Silva", order.Recipient.Name)
	assert.Equal(t, "Rua A, S/N, Centro", order.Recipient.AddressLine())
	assert.Equal(t, int64(777), detail.Invoice.ID)
	require.Len(t, items, 2)
	assert.Equal(t, 2.0, items[0].Quantity)
}

func TestClient_Order_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Order(context.Background(), 204, 1)
	assert.ErrorIs(t, err, shipping.ErrNotFound)
}

func TestClient_UnknownStore(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Order(context.Background(), 999, 1)
	assert.ErrorIs(t, err, ErrStoreNotConfigured)
	assert.ErrorIs(t, err, shipping.ErrConfiguration)
}

func TestClient_Invoice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"id":777,"numero":"000123","serie":1,"chaveAcesso":"3524","dataEmissao":"2024-03-05 14:30:00"}}`)
	})

	inv, err := c.Invoice(context.Background(), 204, 777)
	require.NoError(t, err)

	domain := inv.ToDomain(9001)
	assert.Equal(t, "000123", domain.Number)
	assert.Equal(t, "1", domain.Series)
	assert.Equal(t, 14, domain.IssuedAt.Hour())
}

func TestClient_IssueLabel(t *testing.T) {
	t.Run("returns first link", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "9001", r.URL.Query().Get("idsVendas[]"))
			fmt.Fprint(w, `{"data":[{"id":55,"link":"https://cdn.example/labels/55.zip"}]}`)
		})
		link, err := c.IssueLabel(context.Background(), 204, 9001)
		require.NoError(t, err)
		assert.Equal(t, "55", link.LabelID())
		assert.Equal(t, "https://cdn.example/labels/55.zip", link.Link)
	})

	t.Run("no link", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":[]}`)
		})
		_, err := c.IssueLabel(context.Background(), 204, 9001)
		assert.ErrorIs(t, err, ErrNoLabel)
	})
}

func TestClient_PendingOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pagina") == "1" {
			fmt.Fprint(w, `{"data":[{"id":1,"numero":10,"loja":{"id":204}},{"id":"bad"},{"id":2,"numeroLoja":"MLB-2"}]}`)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	})

	seq, err := c.PendingOrders(context.Background(), 204, 6)
	require.NoError(t, err)

	var ids []int64
	for s := range seq {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Equal(t, []int64{204}, c.Stores())
}
