package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Тестовые данные
var testBrief = DisputeBrief{
	ProjectTitle:       "Лендинг для кофейни",
	MilestoneTitle:     "Дизайн главной страницы",
	AcceptanceCriteria: "Макет в Figma, адаптив под мобильные",
	Amount:             "400.00",
	Currency:           "USD",
	Reason:             "Макет не содержит мобильной версии, хотя это было в критериях",
	RaisedByClient:     true,
	Deliverables:       []string{"https://figma.com/file/abc"},
}

func newTestServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))
}

func TestAnalyzeDispute(t *testing.T) {
	content := "Вот анализ:\n```json\n" +
		`{"confidenceScore":{"freelancer":20,"client":140},"recommendedResolution":"Revision_Required","keyIssues":["нет адаптива"],"reasoning":" критерий не выполнен "}` +
		"\n```"
	srv := newTestServer(t, content, http.StatusOK)
	defer srv.Close()

	verdict, err := NewClient(srv.URL, "test-model", "secret").AnalyzeDispute(context.Background(), testBrief)
	require.NoError(t, err)

	assert.Equal(t, 20.0, verdict.ConfidenceScore.Freelancer)
	assert.Equal(t, 100.0, verdict.ConfidenceScore.Client)
	assert.Equal(t, "revision_required", verdict.RecommendedResolution)
	assert.Equal(t, []string{"нет адаптива"}, verdict.KeyIssues)
	assert.Equal(t, "критерий не выполнен", verdict.Reasoning)
}

func TestAnalyzeDisputeUnknownRecommendation(t *testing.T) {
	srv := newTestServer(t, `{"confidenceScore":{"freelancer":50,"client":50},"recommendedResolution":"coin_flip"}`, http.StatusOK)
	defer srv.Close()

	verdict, err := NewClient(srv.URL, "test-model", "secret").AnalyzeDispute(context.Background(), testBrief)
	require.NoError(t, err)
	assert.Empty(t, verdict.RecommendedResolution)
}

func TestAnalyzeDisputeErrors(t *testing.T) {
	t.Run("код ответа", func(t *testing.T) {
		srv := newTestServer(t, "", http.StatusBadGateway)
		defer srv.Close()

		_, err := NewClient(srv.URL, "test-model", "secret").AnalyzeDispute(context.Background(), testBrief)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	})

	t.Run("не JSON", func(t *testing.T) {
		srv := newTestServer(t, "не могу ответить", http.StatusOK)
		defer srv.Close()

		_, err := NewClient(srv.URL, "test-model", "secret").AnalyzeDispute(context.Background(), testBrief)
		assert.Error(t, err)
	})

	t.Run("без baseURL", func(t *testing.T) {
		_, err := NewClient("", "test-model", "secret").AnalyzeDispute(context.Background(), testBrief)
		assert.Error(t, err)
	})
}

func TestFormatDisputeBrief(t *testing.T) {
	text := formatDisputeBrief(testBrief)

	assert.Contains(t, text, "Спор открыл: заказчик")
	assert.Contains(t, text, "Этап: Дизайн главной страницы (400.00 USD)")
	assert.Contains(t, text, "Критерии приёмки: Макет в Figma")
	assert.NotContains(t, text, "Доказательства")
}
