package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/clusterindex"
	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	apihttp "github.com/fyrsmithlabs/clustereval/internal/http"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
)

func testCampaign(n, batchSize int) *campaign.Campaign {
	records := make([]clusterindex.OccurrenceRecord, n)
	for i := range records {
		records[i] = clusterindex.OccurrenceRecord{Token: "t", SourceLine: i, ClusterID: strconv.Itoa(i)}
	}
	return campaign.New(clusterindex.FromRecords(records), nil, nil, nil, batchSize)
}

func seededStore(t *testing.T, ids ...string) *progress.Service {
	t.Helper()
	store := progress.NewService(progress.NewMemoryBackend())
	for _, id := range ids {
		_, err := store.Upsert(context.Background(), &evaluation.Evaluation{
			ClusterID: id,
			Judgment:  evaluation.Judgment{Acceptability: evaluation.AcceptableYes},
			CreatedAt: time.Now().UTC(),
		}, progress.Guard{})
		require.NoError(t, err)
	}
	return store
}

type downStore struct{}

func (downStore) LoadAll(context.Context) (map[string]*evaluation.Evaluation, error) {
	return map[string]*evaluation.Evaluation{}, fmt.Errorf("load: %w", progress.ErrStoreUnavailable)
}

func (downStore) Upsert(context.Context, *evaluation.Evaluation, progress.Guard) (progress.Result, error) {
	return progress.Result{}, progress.ErrStoreUnavailable
}

func TestStoreSource_Progress(t *testing.T) {
	src := NewStoreSource(testCampaign(5, 2), seededStore(t, "0", "1", "4"), "bolt: progress.db")

	r, err := src.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, r.Total)
	assert.Equal(t, 3, r.Evaluated)
	assert.Equal(t, 2, r.Remaining)
	require.Len(t, r.Batches, 3)
	assert.Equal(t, 2, r.Batches[0].Done)
	assert.Equal(t, 1, r.Batches[2].Done)
	assert.Equal(t, "bolt: progress.db", src.Describe())
}

func TestStoreSource_StoreFailure(t *testing.T) {
	src := NewStoreSource(testCampaign(5, 2), downStore{}, "down")

	_, err := src.Progress(context.Background())
	assert.True(t, errors.Is(err, progress.ErrStoreUnavailable))
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", client.Describe())
	assert.NotNil(t, client.client)
}

func TestClient_Progress_AgainstServer(t *testing.T) {
	server, err := apihttp.NewServer(testCampaign(4, 2), seededStore(t, "2"), zap.NewNop(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Echo())
	defer ts.Close()

	r, err := NewClient(ts.URL).Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 1, r.Evaluated)
	assert.Equal(t, 2, r.BatchSize)
	require.Len(t, r.Batches, 2)
	assert.Equal(t, 1, r.Batches[1].Done)
}

func TestClient_Progress_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "unavailable",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: "unexpected status code 503",
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErr: "failed to decode response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			_, err := NewClient(ts.URL).Progress(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_Progress_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(ts.URL).Progress(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
