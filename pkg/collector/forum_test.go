package collector_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpulse/flowpulse/pkg/collector"
	"github.com/flowpulse/flowpulse/pkg/config"
)

func forumConfig(baseURL string) config.ForumConfig {
	return config.ForumConfig{
		Enabled:        true,
		BaseURL:        baseURL,
		Pages:          3,
		DefaultCountry: "US",
		Pacing:         "1ms",
	}
}

func TestForumCollector_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		switch page {
		case "0":
			_, _ = w.Write([]byte(`{
				"topic_list": {"topics": [
					{
						"id": 11, "title": "Google Sheets -> Slack", "slug": "sheets-slack",
						"category_id": 12, "created_at": "2026-08-01T10:00:00Z",
						"views": 200, "reply_count": 3, "like_count": 7,
						"posts_count": 4, "participant_count": 3
					},
					{
						"id": 12, "title": "Zero view topic", "slug": "zero",
						"category_id": 4,
						"views": 0, "reply_count": 0, "like_count": 0
					}
				]}
			}`))
		case "1":
			// Empty page ends pagination.
			_, _ = w.Write([]byte(`{"topic_list": {"topics": []}}`))
		default:
			t.Errorf("unexpected page fetch: %s", page)
		}
	}))
	t.Cleanup(srv.Close)

	c := collector.NewForumCollector(testLogger(), forumConfig(srv.URL), fastRetry())

	obs, err := c.Collect(context.Background(), collector.Params{})
	require.NoError(t, err)
	require.Len(t, obs, 2)

	first := obs[0]
	assert.Equal(t, collector.PlatformForum, first.Platform)
	assert.Equal(t, "US", first.Country)
	assert.Equal(t, "Google Sheets -> Slack", first.DisplayName)
	assert.Equal(t, "Category ID: 12", first.Description)
	assert.Equal(t, srv.URL+"/t/sheets-slack/11", first.SourceURL)
	assert.Equal(t, "2026-08-01 10:00:00 +0000 UTC", first.ObservedAt.String())

	require.NotNil(t, first.Metrics.Replies)
	assert.Equal(t, 3, *first.Metrics.Replies)
	require.NotNil(t, first.Metrics.UniqueContributors)
	assert.Equal(t, 3, *first.Metrics.UniqueContributors)
	// (3 + 7) / 200 * 1000 = 50.
	assert.InDelta(t, 50.0, first.Metrics.EngagementScore, 1e-9)

	// Zero views yields zero engagement, no fault.
	assert.Zero(t, obs[1].Metrics.EngagementScore)
}

func TestForumCollector_FailedPageStopsPagination(t *testing.T) {
	pagesServed := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		if page == "0" {
			pagesServed++

			_, _ = fmt.Fprint(w, `{
				"topic_list": {"topics": [
					{"id": 1, "title": "First page topic", "slug": "first", "views": 50, "reply_count": 1, "like_count": 1}
				]}
			}`)

			return
		}

		// Page 1 permanently fails; there must be no page 2 fetch.
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := collector.NewForumCollector(testLogger(), forumConfig(srv.URL), fastRetry())

	obs, err := c.Collect(context.Background(), collector.Params{})
	require.NoError(t, err)

	// The first page's topics survive the later page failure.
	require.Len(t, obs, 1)
	assert.Equal(t, "First page topic", obs[0].DisplayName)
	assert.Equal(t, 1, pagesServed)
}

func TestForumCollector_SendsAPIKeyHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		assert.Equal(t, "collector-bot", r.Header.Get("Api-Username"))

		_, _ = w.Write([]byte(`{"topic_list": {"topics": []}}`))
	}))
	t.Cleanup(srv.Close)

	cfg := forumConfig(srv.URL)
	cfg.APIKey = "secret"
	cfg.APIUsername = "collector-bot"

	c := collector.NewForumCollector(testLogger(), cfg, fastRetry())

	obs, err := c.Collect(context.Background(), collector.Params{})
	require.NoError(t, err)
	assert.Empty(t, obs)
}
