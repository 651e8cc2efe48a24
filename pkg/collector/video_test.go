package collector_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpulse/flowpulse/pkg/collector"
	"github.com/flowpulse/flowpulse/pkg/config"
)

func videoTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "video", r.URL.Query().Get("type"))

		_, _ = w.Write([]byte(`{
			"items": [
				{
					"id": {"videoId": "vid-1"},
					"snippet": {"title": "n8n Slack Integration", "description": "howto"}
				},
				{
					"id": {"videoId": "vid-2"},
					"snippet": {"title": "Tiny video", "description": ""}
				},
				{
					"id": {"videoId": "vid-3"},
					"snippet": {"title": "No stats video", "description": ""}
				}
			]
		}`))
	})

	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "statistics", r.URL.Query().Get("part"))
		assert.Equal(t, "vid-1,vid-2,vid-3", r.URL.Query().Get("id"))

		// vid-2 sits below the noise floor; vid-3 has no stats row.
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": "vid-1", "statistics": {"viewCount": "1000", "likeCount": "10", "commentCount": "5"}},
				{"id": "vid-2", "statistics": {"viewCount": "3", "likeCount": "1", "commentCount": "0"}}
			]
		}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestVideoCollector_Collect(t *testing.T) {
	srv := videoTestServer(t)

	c := collector.NewVideoCollector(testLogger(), config.VideoConfig{
		Enabled:    true,
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxResults: 50,
		MinViews:   10,
	}, fastRetry())

	obs, err := c.Collect(context.Background(), collector.Params{
		Queries:   []string{"n8n workflow"},
		Countries: []string{"US"},
	})
	require.NoError(t, err)

	require.Len(t, obs, 1)

	o := obs[0]
	assert.Equal(t, collector.PlatformVideo, o.Platform)
	assert.Equal(t, "US", o.Country)
	assert.Equal(t, "n8n Slack Integration", o.DisplayName)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid-1", o.SourceURL)

	require.NotNil(t, o.Metrics.Views)
	assert.Equal(t, 1000, *o.Metrics.Views)
	assert.InDelta(t, 350.0, o.Metrics.EngagementScore, 1e-9)
	require.NotNil(t, o.Metrics.LikeToViewRatio)
	assert.InDelta(t, 0.01, *o.Metrics.LikeToViewRatio, 1e-9)
	require.NotNil(t, o.Metrics.CommentToViewRatio)
	assert.InDelta(t, 0.005, *o.Metrics.CommentToViewRatio, 1e-9)
}

func TestVideoCollector_NoAPIKey(t *testing.T) {
	c := collector.NewVideoCollector(testLogger(), config.VideoConfig{
		Enabled: true,
		BaseURL: "http://unused.invalid",
	}, fastRetry())

	obs, err := c.Collect(context.Background(), collector.Params{
		Queries:   []string{"n8n"},
		Countries: []string{"US"},
	})
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestVideoCollector_SearchFailureSkipsQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "broken" {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte(`{
			"items": [{"id": {"videoId": "ok-1"}, "snippet": {"title": "Good one"}}]
		}`))
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"items": [{"id": "ok-1", "statistics": {"viewCount": "100", "likeCount": "2", "commentCount": "1"}}]
		}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := collector.NewVideoCollector(testLogger(), config.VideoConfig{
		Enabled:    true,
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxResults: 50,
		MinViews:   10,
	}, fastRetry())

	obs, err := c.Collect(context.Background(), collector.Params{
		Queries:   []string{"broken", "working"},
		Countries: []string{"US"},
	})
	require.NoError(t, err)

	// The broken query is skipped; the working one still lands.
	require.Len(t, obs, 1)
	assert.Equal(t, "Good one", obs[0].DisplayName)
}

func TestVideoCollector_MalformedPayloadNotRetried(t *testing.T) {
	calls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, _ *http.Request) {
		calls++

		_, _ = w.Write([]byte(`{not json`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := collector.NewVideoCollector(testLogger(), config.VideoConfig{
		Enabled:    true,
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxResults: 50,
		MinViews:   10,
	}, fastRetry())

	obs, err := c.Collect(context.Background(), collector.Params{
		Queries:   []string{"n8n"},
		Countries: []string{"US"},
	})
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, 1, calls, "malformed payloads must not be retried")
}
