package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"catalog-sync-service/internal/extapi"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigStore struct {
	cfg        *models.SyncConfig
	logs       []models.SyncLogEntry
	lastStatus string
	lastError  *string
}

func (f *fakeConfigStore) GetConfig(_ context.Context, id int64) (*models.SyncConfig, error) {
	if f.cfg == nil || f.cfg.ID != id {
		return nil, fmt.Errorf("sync config %d: %w", id, store.ErrNotFound)
	}
	cfg := *f.cfg
	return &cfg, nil
}

func (f *fakeConfigStore) UpdateRunStatus(_ context.Context, _ int64, status string, errMsg *string, _ time.Time) error {
	f.lastStatus = status
	f.lastError = errMsg
	return nil
}

func (f *fakeConfigStore) CreateSyncLog(_ context.Context, entry *models.SyncLogEntry) error {
	f.logs = append(f.logs, *entry)
	return nil
}

type fakeProductStore struct {
	mu      sync.Mutex
	rows    map[string]models.ProductUpsert
	upserts int
	failIDs map[string]bool
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{rows: make(map[string]models.ProductUpsert), failIDs: map[string]bool{}}
}

func (f *fakeProductStore) UpsertProduct(_ context.Context, _, syncConfigID int64, cmd *models.ProductUpsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failIDs[cmd.ExternalID] {
		return fmt.Errorf("forced upsert failure")
	}
	f.upserts++
	f.rows[fmt.Sprintf("%d/%s", syncConfigID, cmd.ExternalID)] = *cmd
	return nil
}

type fetchCall struct {
	brandID string
	page    int
}

type fakeFetcher struct {
	calls []fetchCall
	fn    func(brandID string, page int) (*extapi.Page, error)
}

func (f *fakeFetcher) FetchPage(_ context.Context, _ *models.SyncConfig, brandID, _ string, page, _ int) (*extapi.Page, error) {
	f.calls = append(f.calls, fetchCall{brandID: brandID, page: page})
	return f.fn(brandID, page)
}

func testConfig() *models.SyncConfig {
	return &models.SyncConfig{
		ID:             1,
		BusinessID:     10,
		Name:           "acme feed",
		BaseURL:        "https://catalog.example.com",
		APIKey:         "secret",
		Endpoints:      models.EndpointMap{models.EndpointKeyProducts: "/v1/products"},
		DefaultPerPage: 20,
		IsActive:       true,
	}
}

func record(id, name string, price float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id": %q, "name": %q, "price": %v}`, id, name, price))
}

func newTestRunner(configs *fakeConfigStore, products *fakeProductStore, fetcher *fakeFetcher) *SyncRunner {
	return NewSyncRunner(configs, products, fetcher, NewMemoryLocker(), nil, time.Minute, 50)
}

func TestRunSinglePageSuccess(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	total := 95
	fetcher := &fakeFetcher{fn: func(_ string, _ int) (*extapi.Page, error) {
		return &extapi.Page{
			Records:    []json.RawMessage{record("p1", "One", 1), record("p2", "Two", 2), json.RawMessage(`{"id": "p3", "name": "no price"}`)},
			Total:      total,
			TotalKnown: true,
		}, nil
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{PerPage: 20, StartPage: 3})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusSuccess, result.Status)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Empty(t, result.Errors)

	require.NotNil(t, result.Pagination)
	assert.Equal(t, 95, result.Pagination.Total)
	assert.Equal(t, 20, result.Pagination.PerPage)
	assert.Equal(t, 3, result.Pagination.CurrentPage)
	assert.Equal(t, 5, result.Pagination.TotalPages)
	assert.Equal(t, 2, result.Pagination.RemainingPages)

	// single-page mode must not fetch past the requested page
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, 3, fetcher.calls[0].page)

	// the run is recorded on the audit trail and on the config
	require.Len(t, configs.logs, 1)
	assert.Equal(t, models.SyncStatusSuccess, configs.logs[0].Status)
	assert.Equal(t, 2, configs.logs[0].ProcessedCount)
	assert.Equal(t, 1, configs.logs[0].SkippedCount)
	assert.Equal(t, models.SyncStatusSuccess, configs.lastStatus)
	assert.Nil(t, configs.lastError)
}

func TestRunIdempotentUpsert(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(_ string, _ int) (*extapi.Page, error) {
		return &extapi.Page{Records: []json.RawMessage{record("p1", "One", 1), record("p2", "Two", 2)}}, nil
	}}

	runner := newTestRunner(configs, products, fetcher)

	for i := 0; i < 2; i++ {
		result, err := runner.Run(context.Background(), 1, SyncRunParams{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.ProcessedCount)
	}

	// both runs upserted, but the same external ids landed on the same rows
	assert.Equal(t, 4, products.upserts)
	assert.Len(t, products.rows, 2)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(_ string, _ int) (*extapi.Page, error) {
		return &extapi.Page{}, nil
	}}

	locker := NewMemoryLocker()
	runner := NewSyncRunner(configs, products, fetcher, locker, nil, time.Minute, 50)

	held, err := locker.TryLock(context.Background(), 1, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = runner.Run(context.Background(), 1, SyncRunParams{})
	assert.ErrorIs(t, err, ErrSyncInProgress)

	require.NoError(t, locker.Unlock(context.Background(), 1))

	// the lock is released after a run, even a failed one
	_, err = runner.Run(context.Background(), 1, SyncRunParams{})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), 1, SyncRunParams{})
	require.NoError(t, err)
}

func TestRunConfigValidation(t *testing.T) {
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(_ string, _ int) (*extapi.Page, error) {
		t.Fatal("a rejected run must not touch the network")
		return nil, nil
	}}

	t.Run("not found", func(t *testing.T) {
		runner := newTestRunner(&fakeConfigStore{}, products, fetcher)
		_, err := runner.Run(context.Background(), 99, SyncRunParams{})
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("inactive", func(t *testing.T) {
		cfg := testConfig()
		cfg.IsActive = false
		runner := newTestRunner(&fakeConfigStore{cfg: cfg}, products, fetcher)
		_, err := runner.Run(context.Background(), 1, SyncRunParams{})
		assert.ErrorIs(t, err, ErrConfigInactive)
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := testConfig()
		cfg.APIKey = ""
		runner := newTestRunner(&fakeConfigStore{cfg: cfg}, products, fetcher)
		_, err := runner.Run(context.Background(), 1, SyncRunParams{})
		assert.ErrorIs(t, err, ErrConfigIncomplete)
	})

	t.Run("missing base url", func(t *testing.T) {
		cfg := testConfig()
		cfg.BaseURL = ""
		runner := newTestRunner(&fakeConfigStore{cfg: cfg}, products, fetcher)
		_, err := runner.Run(context.Background(), 1, SyncRunParams{})
		assert.ErrorIs(t, err, ErrConfigIncomplete)
	})
}

func TestRunPartialWhenLaterPageFails(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(_ string, page int) (*extapi.Page, error) {
		if page == 1 {
			records := make([]json.RawMessage, 0, 10)
			for i := 0; i < 10; i++ {
				id := fmt.Sprintf("p%d", i)
				records = append(records, record(id, id, 1))
			}
			return &extapi.Page{Records: records, Total: 40, TotalKnown: true}, nil
		}
		return nil, fmt.Errorf("upstream returned status 502")
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{PerPage: 10, SyncAllPages: true})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusPartial, result.Status)
	assert.Equal(t, 10, result.ProcessedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "502")
	assert.Contains(t, result.Errors[0].ProductID, "page 2")

	require.NotNil(t, configs.lastError)
	assert.Equal(t, models.SyncStatusPartial, configs.lastStatus)
}

func TestRunFailedWhenNothingProcessed(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(_ string, _ int) (*extapi.Page, error) {
		return nil, fmt.Errorf("connection refused")
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusFailed, result.Status)
	assert.Equal(t, 0, result.ProcessedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.SyncStatusFailed, configs.lastStatus)
}

func TestRunAllPagesUntilEmptyWhenTotalUnknown(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(_ string, page int) (*extapi.Page, error) {
		if page <= 2 {
			a := record(fmt.Sprintf("a%d", page), "A", 1)
			b := record(fmt.Sprintf("b%d", page), "B", 1)
			return &extapi.Page{Records: []json.RawMessage{a, b}}, nil
		}
		return &extapi.Page{}, nil
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{SyncAllPages: true})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusSuccess, result.Status)
	assert.Equal(t, 4, result.ProcessedCount)
	assert.Len(t, fetcher.calls, 3, "paging stops at the first empty page")
}

func TestRunStopsAtDeclaredTotal(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(_ string, page int) (*extapi.Page, error) {
		a := record(fmt.Sprintf("p%d", page), "P", 1)
		return &extapi.Page{Records: []json.RawMessage{a}, Total: 3, TotalKnown: true}, nil
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{PerPage: 1, SyncAllPages: true})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ProcessedCount)
	assert.Len(t, fetcher.calls, 3)
	assert.Equal(t, 0, result.Pagination.RemainingPages)
}

func TestRunIteratesBrandsInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.BrandIDs = models.BrandFilter{"brand-a", "brand-b"}
	configs := &fakeConfigStore{cfg: cfg}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(brandID string, _ int) (*extapi.Page, error) {
		return &extapi.Page{Records: []json.RawMessage{record(brandID+"-1", "X", 1)}}, nil
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedCount)
	require.Len(t, fetcher.calls, 2)
	assert.Equal(t, "brand-a", fetcher.calls[0].brandID)
	assert.Equal(t, "brand-b", fetcher.calls[1].brandID)
}

func TestRunBrandFailureDoesNotStopOtherBrands(t *testing.T) {
	cfg := testConfig()
	cfg.BrandIDs = models.BrandFilter{"bad", "good"}
	configs := &fakeConfigStore{cfg: cfg}
	products := newFakeProductStore()
	fetcher := &fakeFetcher{fn: func(brandID string, _ int) (*extapi.Page, error) {
		if brandID == "bad" {
			return nil, fmt.Errorf("boom")
		}
		return &extapi.Page{Records: []json.RawMessage{record("g1", "G", 1)}}, nil
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusPartial, result.Status)
	assert.Equal(t, 1, result.ProcessedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].ProductID, "brand bad")
}

func TestRunRecordAndUpsertErrorsDoNotAbortPage(t *testing.T) {
	configs := &fakeConfigStore{cfg: testConfig()}
	products := newFakeProductStore()
	products.failIDs["p2"] = true
	fetcher := &fakeFetcher{fn: func(_ string, _ int) (*extapi.Page, error) {
		return &extapi.Page{Records: []json.RawMessage{
			record("p1", "One", 1),
			record("p2", "Two", 2),
			json.RawMessage(`{"id": "p3", "name": "Bad", "price": 1, "images": {"nested": "oops"}}`),
			record("p4", "Four", 4),
		}}, nil
	}}

	runner := newTestRunner(configs, products, fetcher)
	result, err := runner.Run(context.Background(), 1, SyncRunParams{})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusPartial, result.Status)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 0, result.SkippedCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "p2", result.Errors[0].ProductID)
	assert.Equal(t, "p3", result.Errors[1].ProductID)
}

func TestPaginationFor(t *testing.T) {
	pg := paginationFor(&extapi.Page{Total: 95, TotalKnown: true}, 3, 20)
	assert.Equal(t, 95, pg.Total)
	assert.Equal(t, 5, pg.TotalPages)
	assert.Equal(t, 2, pg.RemainingPages)

	pg = paginationFor(&extapi.Page{Total: 95, TotalKnown: true}, 7, 20)
	assert.Equal(t, 0, pg.RemainingPages, "remaining pages never go negative")

	pg = paginationFor(&extapi.Page{}, 1, 20)
	assert.Equal(t, 0, pg.Total)
	assert.Equal(t, 0, pg.TotalPages)
	assert.Equal(t, 0, pg.RemainingPages)
	assert.Equal(t, 1, pg.CurrentPage)
}
