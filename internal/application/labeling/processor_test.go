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
	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProcessor_ProcessOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, 1, "MLB-1", "A1")
	env.seedLogo(t)
	ctx := context.Background()
	link := "https://cdn.example.com/labels/1.pdf"

	env.carrier.On("IssueLabel", mock.Anything, testStore, int64(1)).
		Return(&carrier.LabelLink{Link: link}, nil).Once()
	env.downloader.On("Get", mock.Anything, link, mock.Anything).
		Return(&httpclient.Response{StatusCode: 200, Body: carrierPDF(t)}, nil).Once()
	env.expectCompose(shipping.DefaultCalibration.BitmapScaleFactor, "^XA^XZ")

	proc := env.processor()
	require.NoError(t, proc.ProcessOrder(ctx, "MLB-1"))

	record, err := env.records.FindByOrderNumber(ctx, "MLB-1")
	require.NoError(t, err)
	assert.True(t, record.LabelSaved())
	assert.Equal(t, link, record.DownloadLink)
	assert.True(t, env.store.HasAll(testStore, "MLB-1", shipping.DerivedArtifacts...))

	// Everything is in place: a second run touches nothing remote.
	require.NoError(t, proc.ProcessOrder(ctx, "MLB-1"))
	env.carrier.AssertNumberOfCalls(t, "IssueLabel", 1)
	env.downloader.AssertNumberOfCalls(t, "Get", 1)
	env.raster.AssertNumberOfCalls(t, "PDFToImage", 1)
}

func TestProcessor_ReissuesExpiredLink(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, 1, "MLB-1", "A1")
	env.seedLogo(t)
	ctx := context.Background()

	record, err := env.records.FindByOrderNumber(ctx, "MLB-1")
	require.NoError(t, err)
	record.DownloadLink = "https://cdn.example.com/old.pdf"
	require.NoError(t, env.records.Save(ctx, record))

	env.downloader.On("Get", mock.Anything, "https://cdn.example.com/old.pdf", mock.Anything).
		Return(nil, &httpclient.ResponseError{StatusCode: 404, Attempts: 1, Kind: httpclient.ErrNonRetryable})
	env.carrier.On("IssueLabel", mock.Anything, testStore, int64(1)).
		Return(&carrier.LabelLink{ID: "99", Link: "https://cdn.example.com/new.pdf"}, nil)
	env.downloader.On("Get", mock.Anything, "https://cdn.example.com/new.pdf", mock.Anything).
		Return(&httpclient.Response{StatusCode: 200, Body: carrierPDF(t)}, nil)
	env.expectCompose(shipping.DefaultCalibration.BitmapScaleFactor, "^XA^XZ")

	require.NoError(t, env.processor().ProcessOrder(ctx, "MLB-1"))

	record, err = env.records.FindByOrderNumber(ctx, "MLB-1")
	require.NoError(t, err)
	assert.Equal(t, "99", record.LabelID)
	assert.Equal(t, "https://cdn.example.com/new.pdf", record.DownloadLink)
}

func TestProcessor_RecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, 1, "MLB-1", "A1")
	ctx := context.Background()

	env.carrier.On("IssueLabel", mock.Anything, testStore, int64(1)).
		Return(nil, fmt.Errorf("%w: 503 from carrier", shipping.ErrTransientRemote))

	err := env.processor().ProcessOrder(ctx, "MLB-1")
	require.ErrorIs(t, err, shipping.ErrTransientRemote)

	record, err := env.records.FindByOrderNumber(ctx, "MLB-1")
	require.NoError(t, err)
	assert.Contains(t, record.LastError, "transient_remote")
	assert.False(t, record.LabelSaved())
}

func TestProcessor_InFlightGuard(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, 1, "MLB-1", "A1")
	ctx := context.Background()
	link := "https://cdn.example.com/labels/1.pdf"

	started := make(chan struct{})
	release := make(chan struct{})
	env.carrier.On("IssueLabel", mock.Anything, testStore, int64(1)).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&carrier.LabelLink{Link: link}, nil).Once()
	env.downloader.On("Get", mock.Anything, link, mock.Anything).
		Return(nil, &httpclient.ResponseError{StatusCode: 400, Attempts: 1, Kind: httpclient.ErrNonRetryable})

	proc := env.processor()
	done := make(chan error, 1)
	go func() { done <- proc.ProcessOrder(ctx, "MLB-1") }()

	<-started
	err := proc.ProcessOrder(ctx, "MLB-1")
	assert.ErrorIs(t, err, labeling.ErrOrderInFlight)

	close(release)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, shipping.ErrFormat)
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}
}

func TestProcessor_HandleFollowUp(t *testing.T) {
	env := newTestEnv(t)
	proc := env.processor()

	t.Run("invalid payload", func(t *testing.T) {
		entry := shared.NewOutboxEntry(labeling.TopicFollowUp, "x", []byte("{"))
		assert.ErrorIs(t, proc.HandleFollowUp(context.Background(), entry), shipping.ErrFormat)
	})

	t.Run("unknown order", func(t *testing.T) {
		payload, err := json.Marshal(labeling.FollowUpPayload{OrderNumber: "MLB-404", StoreID: testStore})
		require.NoError(t, err)
		entry := shared.NewOutboxEntry(labeling.TopicFollowUp, "MLB-404", payload)
		assert.ErrorIs(t, proc.HandleFollowUp(context.Background(), entry), shipping.ErrNotFound)
	})
}
