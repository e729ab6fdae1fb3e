package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsEndpoint(t *testing.T) {
	f := newMemoryFixture(t,
		[]string{"05.02.2025", "Анна", "100"},
		[]string{"05.03.2025", "Иван", "200"},
		[]string{"06.03.2025", "ЗП", "", "30"},
	)
	require.NoError(t, f.repo.RegisterChat(repository.Chat{ChatID: 42, UserID: 7, Username: "owner"}))
	require.NoError(t, f.repo.RecordButtonClick(42, "addrec"))
	require.NoError(t, f.repo.RecordButtonClick(42, "addrec"))
	require.NoError(t, f.repo.RecordButtonClick(42, "pdf"))

	srv := httptest.NewServer(NewStatsAPI(f.repo, f.svc).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))

	assert.Equal(t, 1, stats.TotalChats)
	assert.Equal(t, 1, stats.ActiveToday)
	assert.True(t, stats.StoreAvailable)
	assert.Equal(t, 2, stats.ButtonClicks["➕ Запись"])
	assert.Equal(t, 1, stats.ButtonClicks["📄 PDF"])
	require.Len(t, stats.AllChats, 1)
	assert.Equal(t, "owner", stats.AllChats[0].Username)

	require.Len(t, stats.Periods, 2)
	assert.Equal(t, "2025-03", stats.Periods[0].Period)
	assert.Equal(t, 200.0, stats.Periods[0].Turnover)
	assert.Equal(t, 30.0, stats.Periods[0].Salary)
	assert.Equal(t, 2, stats.Periods[0].Records)
	assert.Equal(t, "2025-02", stats.Periods[1].Period)
}

func TestHealthReportsStore(t *testing.T) {
	f := newBotFixture(t, nil, nil)
	srv := httptest.NewServer(NewStatsAPI(f.repo, f.svc).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["store_available"])
}

func TestStatsUnknownRoute(t *testing.T) {
	f := newMemoryFixture(t)
	rec := httptest.NewRecorder()
	NewStatsAPI(f.repo, f.svc).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTranslateButtonName(t *testing.T) {
	assert.Equal(t, "📈 Прогноз", translateButtonName("fcst"))
	assert.Equal(t, "legacy", translateButtonName("legacy"))
}
