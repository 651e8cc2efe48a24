package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/retry"
)

const videoHTTPTimeout = 15 * time.Second

// statsBatchSize is the upstream maximum number of video ids per
// statistics call.
const statsBatchSize = 50

// VideoCollector pulls workflow observations from the video platform's
// search and statistics APIs.
type VideoCollector struct {
	log      logrus.FieldLogger
	cfg      config.VideoConfig
	retryCfg retry.Config
	client   *http.Client
}

// Compile-time interface check.
var _ Collector = (*VideoCollector)(nil)

// NewVideoCollector creates a video platform collector.
func NewVideoCollector(
	log logrus.FieldLogger,
	cfg config.VideoConfig,
	retryCfg config.RetryConfig,
) *VideoCollector {
	return &VideoCollector{
		log: log.WithField("component", "collector.video"),
		cfg: cfg,
		retryCfg: retry.Config{
			MaxAttempts:  retryCfg.MaxAttempts,
			InitialDelay: retryCfg.Delay(),
			Multiplier:   retryCfg.Multiplier,
			Retryable:    Retryable,
		},
		client: &http.Client{Timeout: videoHTTPTimeout},
	}
}

// Platform returns the platform identifier for video observations.
func (c *VideoCollector) Platform() string { return PlatformVideo }

// videoSearchResponse is the wire shape of the search endpoint.
type videoSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// videoStatsResponse is the wire shape of the statistics endpoint.
// Counter values arrive as decimal strings.
type videoStatsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type videoStats struct {
	views    int
	likes    int
	comments int
}

// Collect searches every (country, query) pair and resolves statistics
// for the found videos in batches. Failed calls are logged and skipped;
// the method fails outright only when no API key is configured.
func (c *VideoCollector) Collect(
	ctx context.Context, params Params,
) ([]Observation, error) {
	if c.cfg.APIKey == "" {
		c.log.Warn("No API key configured, skipping video collection")

		return nil, nil
	}

	var observations []Observation

	for _, country := range params.Countries {
		for _, query := range params.Queries {
			c.log.WithField("query", query).
				WithField("country", country).
				Debug("Searching videos")

			items, err := retry.Do(ctx, c.log, c.retryCfg,
				func(ctx context.Context) (*videoSearchResponse, error) {
					return c.search(ctx, query, country)
				})
			if err != nil {
				c.log.WithError(err).
					WithField("query", query).
					WithField("country", country).
					Error("Video search failed, skipping query")

				continue
			}

			if len(items.Items) == 0 {
				continue
			}

			ids := make([]string, 0, len(items.Items))
			for _, item := range items.Items {
				ids = append(ids, item.ID.VideoID)
			}

			stats := c.collectStatistics(ctx, ids)

			for _, item := range items.Items {
				st, ok := stats[item.ID.VideoID]
				if !ok {
					continue
				}

				// Below the noise floor the ratios are meaningless.
				if st.views < c.cfg.MinViews {
					continue
				}

				observations = append(observations, c.buildObservation(
					country, item.ID.VideoID,
					item.Snippet.Title, item.Snippet.Description,
					st,
				))
			}
		}
	}

	return observations, nil
}

// collectStatistics resolves view/like/comment counters for the given
// video ids, batched at the upstream maximum. A failed batch is logged
// and its videos dropped.
func (c *VideoCollector) collectStatistics(
	ctx context.Context, ids []string,
) map[string]videoStats {
	stats := make(map[string]videoStats, len(ids))

	for start := 0; start < len(ids); start += statsBatchSize {
		end := start + statsBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		batch := ids[start:end]

		resp, err := retry.Do(ctx, c.log, c.retryCfg,
			func(ctx context.Context) (*videoStatsResponse, error) {
				return c.statistics(ctx, batch)
			})
		if err != nil {
			c.log.WithError(err).
				WithField("batch_size", len(batch)).
				Error("Statistics batch failed, dropping batch")

			continue
		}

		for _, item := range resp.Items {
			stats[item.ID] = videoStats{
				views:    parseCount(item.Statistics.ViewCount),
				likes:    parseCount(item.Statistics.LikeCount),
				comments: parseCount(item.Statistics.CommentCount),
			}
		}
	}

	return stats
}

func (c *VideoCollector) buildObservation(
	country, videoID, title, description string, st videoStats,
) Observation {
	var likeRatio, commentRatio float64

	if st.views > 0 {
		likeRatio = float64(st.likes) / float64(st.views)
		commentRatio = float64(st.comments) / float64(st.views)
	}

	return Observation{
		Platform:    PlatformVideo,
		Country:     country,
		DisplayName: title,
		Description: description,
		SourceURL:   "https://www.youtube.com/watch?v=" + videoID,
		ObservedAt:  time.Now().UTC(),
		Metrics: Metrics{
			Views:              intPtr(st.views),
			Likes:              intPtr(st.likes),
			Comments:           intPtr(st.comments),
			LikeToViewRatio:    floatPtr(roundTo(likeRatio, 6)),
			CommentToViewRatio: floatPtr(roundTo(commentRatio, 6)),
			EngagementScore:    VideoEngagement(st.views, st.likes, st.comments),
		},
	}
}

// VideoEngagement computes the unified engagement score for video
// observations: (likes*2 + comments*3) / views * 10000, or 0 for zero
// views. Comments are weighted above likes for their higher intent
// cost; the scale factor keeps low-view scores numerically stable.
func VideoEngagement(views, likes, comments int) float64 {
	if views == 0 {
		return 0
	}

	score := float64(likes*2+comments*3) / float64(views) * 10000

	return roundTo(score, 4)
}

func (c *VideoCollector) search(
	ctx context.Context, query, country string,
) (*videoSearchResponse, error) {
	params := url.Values{
		"q":                 {query},
		"part":              {"id,snippet"},
		"maxResults":        {strconv.Itoa(c.cfg.MaxResults)},
		"type":              {"video"},
		"regionCode":        {country},
		"relevanceLanguage": {"en"},
		"order":             {"relevance"},
		"key":               {c.cfg.APIKey},
	}

	var resp videoSearchResponse
	if err := c.getJSON(ctx, "/search", params, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *VideoCollector) statistics(
	ctx context.Context, ids []string,
) (*videoStatsResponse, error) {
	params := url.Values{
		"part": {"statistics"},
		"id":   {strings.Join(ids, ",")},
		"key":  {c.cfg.APIKey},
	}

	var resp videoStatsResponse
	if err := c.getJSON(ctx, "/videos", params, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *VideoCollector) getJSON(
	ctx context.Context, path string, params url.Values, out any,
) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		c.cfg.BaseURL+path+"?"+params.Encode(), nil,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: %w", path, &StatusError{Status: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, ErrMalformedPayload)
	}

	return nil
}

// parseCount parses an upstream decimal-string counter, treating
// missing or malformed values as zero.
func parseCount(s string) int {
	if s == "" {
		return 0
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}
