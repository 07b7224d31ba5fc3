package labeling_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/erp/shipping/internal/application/labeling"
	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/carrier"
	"github.com/erp/shipping/internal/infrastructure/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const detailJSON = `{
	"id": 501,
	"numero": 88,
	"numeroLoja": "MLB-501",
	"loja": {"id": 7},
	"contato": {"nome": "Contato"},
	"itens": [
		{"codigo": "SKU-2", "descricao": "Copo", "quantidade": 2},
		{"codigo": "SKU-1", "descricao": "Prato", "quantidade": 1}
	],
	"notaFiscal": {"id": 9001},
	"transporte": {"etiqueta": {
		"nome": "Ana Lima", "endereco": "Av. Brasil", "numero": "", "bairro": "Centro",
		"municipio": "Londrina", "uf": "PR", "cep": "86000-000"
	}}
}`

func TestSyncer_SyncOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.carrier.On("Invoice", mock.Anything, testStore, int64(9001)).
		Return(&carrier.InvoiceDetail{ID: 9001, AccessKey: "4124", IssuedAt: "2024-03-05 14:07:00"}, nil)

	syncer := labeling.NewSyncer(env.carrier, env.writer, true, env.logger)
	order, err := syncer.SyncOrder(ctx, testStore, orderDetail(t, detailJSON))
	require.NoError(t, err)
	assert.Equal(t, "MLB-501", order.OrderNumber)
	assert.Equal(t, "Av. Brasil, S/N, Centro", order.Recipient.AddressLine())

	items, err := env.orders.Items(ctx, 501)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	invoice, err := env.orders.InvoiceByOrderNumber(ctx, "MLB-501")
	require.NoError(t, err)
	assert.Equal(t, "05/03/2024 14:07", invoice.IssuedAt.Format("02/01/2006 15:04"))

	record, err := env.records.FindByOrderNumber(ctx, "MLB-501")
	require.NoError(t, err)
	assert.Equal(t, testStore, record.StoreID)

	due, err := event.NewGormOutboxRepository(env.db.DB).FindDue(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, labeling.TopicFollowUp, due[0].Topic)
	var payload labeling.FollowUpPayload
	require.NoError(t, json.Unmarshal(due[0].Payload, &payload))
	assert.Equal(t, labeling.FollowUpPayload{OrderNumber: "MLB-501", StoreID: testStore}, payload)
}

func TestSyncer_KeepsExistingRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.carrier.On("Invoice", mock.Anything, testStore, int64(9001)).
		Return(nil, fmt.Errorf("invoice 9001: %w", shipping.ErrNotFound))

	syncer := labeling.NewSyncer(env.carrier, env.writer, false, env.logger)
	_, err := syncer.SyncOrder(ctx, testStore, orderDetail(t, detailJSON))
	require.NoError(t, err)

	record, err := env.records.FindByOrderNumber(ctx, "MLB-501")
	require.NoError(t, err)
	record.MarkLabelSaved("L1", "https://cdn.example.com/1.pdf")
	require.NoError(t, env.records.Save(ctx, record))

	_, err = syncer.SyncOrder(ctx, testStore, orderDetail(t, detailJSON))
	require.NoError(t, err)

	record, err = env.records.FindByOrderNumber(ctx, "MLB-501")
	require.NoError(t, err)
	assert.True(t, record.LabelSaved())

	_, err = env.orders.InvoiceByOrderNumber(ctx, "MLB-501")
	assert.ErrorIs(t, err, shipping.ErrNotFound)

	counts, err := event.NewGormOutboxRepository(env.db.DB).CountByStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[shared.OutboxStatusPending])
}

func TestSyncer_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	syncer := labeling.NewSyncer(env.carrier, env.writer, false, env.logger)

	t.Run("order without number", func(t *testing.T) {
		_, err := syncer.SyncOrder(ctx, testStore, orderDetail(t, `{"id": 3}`))
		assert.ErrorIs(t, err, shipping.ErrFormat)
	})

	t.Run("invoice fetch fails", func(t *testing.T) {
		env.carrier.On("Invoice", mock.Anything, testStore, int64(9001)).
			Return(nil, fmt.Errorf("%w: timeout", shipping.ErrTransientRemote)).Once()
		_, err := syncer.SyncOrder(ctx, testStore, orderDetail(t, detailJSON))
		assert.ErrorIs(t, err, shipping.ErrTransientRemote)

		_, err = env.orders.FindByNumber(ctx, "MLB-501")
		assert.ErrorIs(t, err, shipping.ErrNotFound)
	})

	t.Run("fetch and sync", func(t *testing.T) {
		env.carrier.On("Order", mock.Anything, testStore, int64(501)).
			Return(orderDetail(t, detailJSON), nil).Once()
		env.carrier.On("Invoice", mock.Anything, testStore, int64(9001)).
			Return(&carrier.InvoiceDetail{ID: 9001}, nil).Once()
		order, err := syncer.FetchAndSync(ctx, testStore, 501)
		require.NoError(t, err)
		assert.Equal(t, int64(501), order.OrderID)
	})
}
