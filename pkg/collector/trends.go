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
	"golang.org/x/time/rate"

	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/retry"
)

const trendsHTTPTimeout = 30 * time.Second

// maxRelatedQueries caps the related terms carried into a trends
// observation's description.
const maxRelatedQueries = 5

// TrendsCollector pulls search-interest series from the trends gateway
// and derives interest metrics per (country, keyword).
type TrendsCollector struct {
	log      logrus.FieldLogger
	cfg      config.TrendsConfig
	retryCfg retry.Config
	client   *http.Client
	pacer    *rate.Limiter
}

// Compile-time interface check.
var _ Collector = (*TrendsCollector)(nil)

// NewTrendsCollector creates a search interest collector.
func NewTrendsCollector(
	log logrus.FieldLogger,
	cfg config.TrendsConfig,
	retryCfg config.RetryConfig,
) *TrendsCollector {
	return &TrendsCollector{
		log: log.WithField("component", "collector.trends"),
		cfg: cfg,
		retryCfg: retry.Config{
			MaxAttempts:  retryCfg.MaxAttempts,
			InitialDelay: retryCfg.Delay(),
			Multiplier:   retryCfg.Multiplier,
			Retryable:    Retryable,
		},
		client: &http.Client{Timeout: trendsHTTPTimeout},
		pacer:  rate.NewLimiter(rate.Every(cfg.PacingInterval()), 1),
	}
}

// Platform returns the platform identifier for trends observations.
func (c *TrendsCollector) Platform() string { return PlatformSearch }

// trendsResponse is the wire shape of the interest endpoint.
type trendsResponse struct {
	Points []struct {
		Date  string `json:"date"`
		Value int    `json:"value"`
	} `json:"points"`
	Related []string `json:"related"`
}

// Collect fetches the interest series for every (country, keyword)
// pair. Requests are paced against the upstream's informal rate limits
// and each fetch runs on an offloaded goroutine so a stalled upstream
// cannot block sibling sources beyond context cancellation.
func (c *TrendsCollector) Collect(
	ctx context.Context, params Params,
) ([]Observation, error) {
	if c.cfg.BaseURL == "" {
		c.log.Warn("No trends gateway configured, skipping trends collection")

		return nil, nil
	}

	var observations []Observation

	for _, country := range params.Countries {
		for _, keyword := range params.Queries {
			if err := c.pacer.Wait(ctx); err != nil {
				return observations, fmt.Errorf("pacing wait: %w", err)
			}

			c.log.WithField("keyword", keyword).
				WithField("country", country).
				Debug("Fetching search interest")

			series, err := retry.Do(ctx, c.log, c.retryCfg,
				func(ctx context.Context) (*trendsResponse, error) {
					return c.fetchOffloaded(ctx, keyword, country)
				})
			if err != nil {
				c.log.WithError(err).
					WithField("keyword", keyword).
					WithField("country", country).
					Warn("Fetching search interest failed, skipping keyword")

				continue
			}

			if len(series.Points) == 0 {
				continue
			}

			observations = append(observations,
				c.buildObservation(keyword, country, series))
		}
	}

	return observations, nil
}

func (c *TrendsCollector) buildObservation(
	keyword, country string, series *trendsResponse,
) Observation {
	values := make([]int, 0, len(series.Points))
	for _, p := range series.Points {
		values = append(values, p.Value)
	}

	meanInterest := mean(values)
	current := values[len(values)-1]
	trendPct := TrendDelta(values)

	related := series.Related
	if len(related) > maxRelatedQueries {
		related = related[:maxRelatedQueries]
	}

	description := ""
	if len(related) > 0 {
		description = "Related: " + strings.Join(related, ", ")
	}

	return Observation{
		Platform:    PlatformSearch,
		Country:     country,
		DisplayName: keyword,
		Description: description,
		SourceURL: fmt.Sprintf(
			"https://trends.google.com/trends/explore?q=%s&geo=%s",
			url.QueryEscape(keyword), country,
		),
		ObservedAt: time.Now().UTC(),
		Metrics: Metrics{
			// The upstream reports relative interest, never absolute
			// search volume.
			SearchVolume:    intPtr(0),
			InterestScore:   intPtr(int(meanInterest)),
			TrendPercentage: floatPtr(trendPct),
			EngagementScore: float64(current),
		},
	}
}

// TrendDelta compares the mean of the most recent 30 points against
// the 30 before them: (recent - previous) / previous * 100, rounded to
// 2 decimals. Series too short to form both windows, or with a zero
// previous-window mean, score 0.
func TrendDelta(values []int) float64 {
	if len(values) <= 60 {
		return 0
	}

	recent := mean(values[len(values)-30:])
	previous := mean(values[len(values)-60 : len(values)-30])

	if previous == 0 {
		return 0
	}

	return roundTo((recent-previous)/previous*100, 2)
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0
	for _, v := range values {
		sum += v
	}

	return float64(sum) / float64(len(values))
}

// fetchOffloaded runs the interest fetch on its own goroutine and
// joins the result, so the caller unblocks as soon as ctx is done even
// if the underlying transfer has stalled.
func (c *TrendsCollector) fetchOffloaded(
	ctx context.Context, keyword, country string,
) (*trendsResponse, error) {
	type result struct {
		resp *trendsResponse
		err  error
	}

	ch := make(chan result, 1)

	go func() {
		resp, err := c.fetchInterest(ctx, keyword, country)
		ch <- result{resp: resp, err: err}
	}()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("interest fetch abandoned: %w", ctx.Err())
	}
}

func (c *TrendsCollector) fetchInterest(
	ctx context.Context, keyword, country string,
) (*trendsResponse, error) {
	params := url.Values{
		"keyword": {keyword},
		"geo":     {country},
		"days":    {strconv.Itoa(c.cfg.WindowDays)},
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet,
		c.cfg.BaseURL+"/interest?"+params.Encode(), nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching interest for %q: %w", keyword, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching interest for %q: %w",
			keyword, &StatusError{Status: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var series trendsResponse
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("parsing interest response: %w", ErrMalformedPayload)
	}

	return &series, nil
}
