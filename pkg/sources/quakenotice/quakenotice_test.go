package quakenotice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krsafety/alertfeed/pkg/models"
)

const microQuakePage = `<html><body>
<p>2025/12/25 05:14:43 경남 밀양시 동쪽 15km 지역 (규모:1.5 / 깊이:8km)</p>
</body></html>`

func newTestAdapter(handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return &Adapter{baseURL: srv.URL, client: srv.Client()}, srv
}

func servePage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}
}

func TestRunEmitsMicroQuakeNotice(t *testing.T) {
	adapter, srv := newTestAdapter(servePage(microQuakePage))
	defer srv.Close()

	result, err := adapter.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	draft := result.Events[0]
	assert.Equal(t, models.KindEarthquake, draft.Kind)
	assert.Equal(t, "경남 밀양시 동쪽 15km 지역 규모 1.5 미소지진", draft.Title)
	assert.Equal(t, models.LevelInfo, draft.Level)
	require.NotNil(t, draft.OccurredAt)
	assert.Equal(t, time.Date(2025, 12, 24, 20, 14, 43, 0, time.UTC), *draft.OccurredAt)
	require.NotNil(t, draft.RegionText)
	assert.Equal(t, "경남 밀양시 동쪽 15km 지역", *draft.RegionText)
	assert.Equal(t, 8.0, draft.Payload["depthKm"])
	assert.Equal(t, 1.5, draft.Payload["magnitude"])
	require.NotNil(t, result.NextState)
}

func TestRunIdenticalPageEmitsNothing(t *testing.T) {
	adapter, srv := newTestAdapter(servePage(microQuakePage))
	defer srv.Close()

	first, err := adapter.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, first.Events, 1)

	second, err := adapter.Run(context.Background(), first.NextState)
	require.NoError(t, err)
	assert.Empty(t, second.Events)
	assert.Equal(t, first.NextState, second.NextState)
}

func TestRunChangedPageEmitsAgain(t *testing.T) {
	page := microQuakePage
	adapter, srv := newTestAdapter(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	})
	defer srv.Close()

	first, err := adapter.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, first.Events, 1)

	page = `<p>2025/12/26 11:02:10 경북 경주시 남남서쪽 8km 지역 (규모:4.2 / 깊이:12km)</p>`
	second, err := adapter.Run(context.Background(), first.NextState)
	require.NoError(t, err)
	require.Len(t, second.Events, 1)
	assert.Equal(t, "경북 경주시 남남서쪽 8km 지역 규모 4.2 지진", second.Events[0].Title)
	assert.Equal(t, models.LevelModerate, second.Events[0].Level)
}

func TestRunFetchFailureKeepsPriorState(t *testing.T) {
	adapter, srv := newTestAdapter(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	prior := "old snapshot"
	result, err := adapter.Run(context.Background(), &prior)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	require.NotNil(t, result.NextState)
	assert.Equal(t, "old snapshot", *result.NextState)
}

func TestRunUnrecognizablePageKeepsPriorState(t *testing.T) {
	adapter, srv := newTestAdapter(servePage(`<html><body>점검 중입니다</body></html>`))
	defer srv.Close()

	prior := "old snapshot"
	result, err := adapter.Run(context.Background(), &prior)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	require.NotNil(t, result.NextState)
	assert.Equal(t, "old snapshot", *result.NextState)
}

func TestLevelFromMagnitude(t *testing.T) {
	assert.Equal(t, models.LevelInfo, levelFromMagnitude(2.9))
	assert.Equal(t, models.LevelMinor, levelFromMagnitude(3.0))
	assert.Equal(t, models.LevelModerate, levelFromMagnitude(4.5))
	assert.Equal(t, models.LevelSevere, levelFromMagnitude(5.9))
	assert.Equal(t, models.LevelCritical, levelFromMagnitude(6.0))
}
