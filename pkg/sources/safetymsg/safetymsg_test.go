package safetymsg

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

func newTestAdapter(handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return &Adapter{baseURL: srv.URL, client: srv.Client()}, srv
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestRunSerialWatermark(t *testing.T) {
	// Two consecutive runs over an advancing feed: the watermark filters
	// already-emitted serials and lands on the newest one.
	const firstFeed = `{"body":[
		{"SN":100,"CRT_DT":"2025/12/25 05:14:43","MSG_CN":"호우 경보 발령","RCPTN_RGN_NM":"경남 밀양시","EMRG_STEP_NM":"긴급재난","DST_SE_NM":"호우"},
		{"SN":101,"CRT_DT":"2025/12/25 05:20:00","MSG_CN":"하천변 접근 금지","RCPTN_RGN_NM":"경남 밀양시","EMRG_STEP_NM":"안전안내","DST_SE_NM":"호우"}
	]}`
	const secondFeed = `{"body":[
		{"SN":101,"CRT_DT":"2025/12/25 05:20:00","MSG_CN":"하천변 접근 금지","RCPTN_RGN_NM":"경남 밀양시","EMRG_STEP_NM":"안전안내","DST_SE_NM":"호우"},
		{"SN":102,"CRT_DT":"2025/12/25 05:30:00","MSG_CN":"대피소 안내","RCPTN_RGN_NM":"경남 밀양시","EMRG_STEP_NM":"안전안내","DST_SE_NM":"호우"},
		{"SN":103,"CRT_DT":"2025/12/25 05:40:00","MSG_CN":"지진 발생","RCPTN_RGN_NM":"경북 경주시","EMRG_STEP_NM":"위급재난","DST_SE_NM":"지진"}
	]}`

	feed := firstFeed
	adapter, srv := newTestAdapter(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feed))
	})
	defer srv.Close()

	result, err := adapter.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	require.NotNil(t, result.NextState)
	assert.Equal(t, "101", *result.NextState)

	feed = secondFeed
	result, err = adapter.Run(context.Background(), result.NextState)
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	assert.Equal(t, "대피소 안내", result.Events[0].Title)
	assert.Equal(t, "지진 발생", result.Events[1].Title)
	require.NotNil(t, result.NextState)
	assert.Equal(t, "103", *result.NextState)
}

func TestRunUnchangedFeedEmitsNothing(t *testing.T) {
	const feed = `{"body":[{"SN":100,"CRT_DT":"2025/12/25 05:14:43","MSG_CN":"호우 경보","RCPTN_RGN_NM":"경남","EMRG_STEP_NM":"긴급재난","DST_SE_NM":"호우"}]}`

	adapter, srv := newTestAdapter(serveJSON(feed))
	defer srv.Close()

	result, err := adapter.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	result, err = adapter.Run(context.Background(), result.NextState)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	require.NotNil(t, result.NextState)
	assert.Equal(t, "100", *result.NextState)
}

func TestRunDraftFields(t *testing.T) {
	const feed = `{"body":[{"SN":7,"CRT_DT":"2025/12/25 05:14:43","MSG_CN":"  지진   발생  ","RCPTN_RGN_NM":"경북 경주시","EMRG_STEP_NM":"위급재난","DST_SE_NM":"지진"}]}`

	adapter, srv := newTestAdapter(serveJSON(feed))
	defer srv.Close()

	result, err := adapter.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	draft := result.Events[0]
	assert.Equal(t, models.KindEarthquake, draft.Kind)
	assert.Equal(t, models.LevelCritical, draft.Level)
	assert.Equal(t, "지진 발생", draft.Title)
	require.NotNil(t, draft.Body)
	assert.Equal(t, "지진 발생", *draft.Body)
	require.NotNil(t, draft.RegionText)
	assert.Equal(t, "경북 경주시", *draft.RegionText)
	require.NotNil(t, draft.OccurredAt)
	assert.Equal(t, time.Date(2025, 12, 24, 20, 14, 43, 0, time.UTC), *draft.OccurredAt)
	assert.Equal(t, int64(7), draft.Payload["serial"])
}

func TestRunMalformedTimestampEmitsNullOccurredAt(t *testing.T) {
	const feed = `{"body":[{"SN":1,"CRT_DT":"not a time","MSG_CN":"안내","RCPTN_RGN_NM":"서울","EMRG_STEP_NM":"안전안내","DST_SE_NM":"기타"}]}`

	adapter, srv := newTestAdapter(serveJSON(feed))
	defer srv.Close()

	result, err := adapter.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Nil(t, result.Events[0].OccurredAt)
}

func TestRunFetchFailureKeepsPriorState(t *testing.T) {
	adapter, srv := newTestAdapter(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	prior := "42"
	result, err := adapter.Run(context.Background(), &prior)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	require.NotNil(t, result.NextState)
	assert.Equal(t, "42", *result.NextState)
}

func TestRunMalformedBodyKeepsPriorState(t *testing.T) {
	adapter, srv := newTestAdapter(serveJSON(`{"body": "not a list"`))
	defer srv.Close()

	prior := "42"
	result, err := adapter.Run(context.Background(), &prior)
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	require.NotNil(t, result.NextState)
	assert.Equal(t, "42", *result.NextState)
}

func TestLevelFromStep(t *testing.T) {
	assert.Equal(t, models.LevelCritical, levelFromStep("위급재난"))
	assert.Equal(t, models.LevelSevere, levelFromStep("긴급재난"))
	assert.Equal(t, models.LevelModerate, levelFromStep("안전안내"))
	assert.Equal(t, models.LevelModerate, levelFromStep(""))
}

func TestKindFromDisasterType(t *testing.T) {
	assert.Equal(t, models.KindEarthquakeTsunami, kindFromDisasterType("지진해일"))
	assert.Equal(t, models.KindEarthquake, kindFromDisasterType("지진"))
	assert.Equal(t, models.KindHeavyRain, kindFromDisasterType("호우"))
	assert.Equal(t, models.KindOther, kindFromDisasterType("알 수 없음"))
}
