package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/retry"
)

const forumHTTPTimeout = 15 * time.Second

// ForumCollector pulls workflow observations from the community
// forum's latest-topics listing.
type ForumCollector struct {
	log      logrus.FieldLogger
	cfg      config.ForumConfig
	retryCfg retry.Config
	client   *http.Client
	pacer    *rate.Limiter
}

// Compile-time interface check.
var _ Collector = (*ForumCollector)(nil)

// NewForumCollector creates a forum collector. Without an API key,
// requests are paced at the configured interval to stay polite toward
// unauthenticated access limits.
func NewForumCollector(
	log logrus.FieldLogger,
	cfg config.ForumConfig,
	retryCfg config.RetryConfig,
) *ForumCollector {
	var pacer *rate.Limiter
	if cfg.APIKey == "" {
		pacer = rate.NewLimiter(rate.Every(cfg.PacingInterval()), 1)
	}

	return &ForumCollector{
		log: log.WithField("component", "collector.forum"),
		cfg: cfg,
		retryCfg: retry.Config{
			MaxAttempts:  retryCfg.MaxAttempts,
			InitialDelay: retryCfg.Delay(),
			Multiplier:   retryCfg.Multiplier,
			Retryable:    Retryable,
		},
		client: &http.Client{Timeout: forumHTTPTimeout},
		pacer:  pacer,
	}
}

// Platform returns the platform identifier for forum observations.
func (c *ForumCollector) Platform() string { return PlatformForum }

// forumTopicsResponse is the wire shape of the latest-topics listing.
type forumTopicsResponse struct {
	TopicList struct {
		Topics []forumTopic `json:"topics"`
	} `json:"topic_list"`
}

type forumTopic struct {
	ID               int    `json:"id"`
	Title            string `json:"title"`
	Slug             string `json:"slug"`
	CategoryID       int    `json:"category_id"`
	CreatedAt        string `json:"created_at"`
	Views            int    `json:"views"`
	ReplyCount       int    `json:"reply_count"`
	LikeCount        int    `json:"like_count"`
	PostsCount       int    `json:"posts_count"`
	ParticipantCount int    `json:"participant_count"`
}

// Collect paginates the latest-topics listing. A failed or empty page
// stops further pagination for this source but keeps the topics
// already fetched. The forum carries no geography, so every
// observation is assigned the configured default country.
func (c *ForumCollector) Collect(
	ctx context.Context, _ Params,
) ([]Observation, error) {
	var observations []Observation

	for page := 0; page < c.cfg.Pages; page++ {
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return observations, fmt.Errorf("pacing wait: %w", err)
			}
		}

		resp, err := retry.Do(ctx, c.log, c.retryCfg,
			func(ctx context.Context) (*forumTopicsResponse, error) {
				return c.fetchLatest(ctx, page)
			})
		if err != nil {
			c.log.WithError(err).
				WithField("page", page).
				Error("Fetching forum page failed, stopping pagination")

			break
		}

		if len(resp.TopicList.Topics) == 0 {
			break
		}

		for _, topic := range resp.TopicList.Topics {
			observations = append(observations, c.buildObservation(topic))
		}
	}

	c.log.WithField("count", len(observations)).
		Debug("Collected forum topics")

	return observations, nil
}

func (c *ForumCollector) buildObservation(topic forumTopic) Observation {
	observedAt := time.Now().UTC()
	if topic.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, topic.CreatedAt); err == nil {
			observedAt = t
		}
	}

	return Observation{
		Platform:    PlatformForum,
		Country:     c.cfg.DefaultCountry,
		DisplayName: topic.Title,
		Description: fmt.Sprintf("Category ID: %d", topic.CategoryID),
		SourceURL:   fmt.Sprintf("%s/t/%s/%d", c.cfg.BaseURL, topic.Slug, topic.ID),
		ObservedAt:  observedAt,
		Metrics: Metrics{
			Views:              intPtr(topic.Views),
			Likes:              intPtr(topic.LikeCount),
			Replies:            intPtr(topic.ReplyCount),
			UniqueContributors: intPtr(topic.ParticipantCount),
			EngagementScore:    ForumEngagement(topic.Views, topic.ReplyCount, topic.LikeCount),
		},
	}
}

// ForumEngagement computes the unified engagement score for forum
// observations: (replies + likes) / views * 1000, or 0 for zero views.
// The lighter scale factor reflects forum metrics' smaller magnitudes.
func ForumEngagement(views, replies, likes int) float64 {
	if views == 0 {
		return 0
	}

	score := float64(replies+likes) / float64(views) * 1000

	return roundTo(score, 4)
}

func (c *ForumCollector) fetchLatest(
	ctx context.Context, page int,
) (*forumTopicsResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		fmt.Sprintf("%s/latest.json?page=%d", c.cfg.BaseURL, page), nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if c.cfg.APIKey != "" {
		req.Header.Set("Api-Key", c.cfg.APIKey)

		if c.cfg.APIUsername != "" {
			req.Header.Set("Api-Username", c.cfg.APIUsername)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching topics page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching topics page %d: %w",
			page, &StatusError{Status: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var topics forumTopicsResponse
	if err := json.Unmarshal(body, &topics); err != nil {
		return nil, fmt.Errorf("parsing topics page %d: %w", page, ErrMalformedPayload)
	}

	return &topics, nil
}
