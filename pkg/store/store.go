// Package store provides persistence for workflows, metric samples,
// and collection audit rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/flowpulse/flowpulse/pkg/collector"
	"github.com/flowpulse/flowpulse/pkg/config"
)

// ErrNotFound marks a lookup that matched no row.
var ErrNotFound = errors.New("not found")

// ErrConflict marks a write rejected by a uniqueness constraint.
var ErrConflict = errors.New("persistence conflict")

// WorkflowFilter selects and orders workflows for listing.
type WorkflowFilter struct {
	Platform string
	Country  string
	Search   string
	SortBy   string // "created_at" or "engagement_score"
	Order    string // "asc" or "desc"
	Page     int
	Size     int
}

// PlatformStat aggregates per-platform workflow figures.
type PlatformStat struct {
	Platform       string         `json:"platform"`
	TotalWorkflows int            `json:"total_workflows"`
	Countries      map[string]int `json:"countries"`
	AvgEngagement  float64        `json:"avg_engagement"`
}

// Store provides persistence for the collection pipeline and its
// read-only query surface.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Pipeline writes.
	FindWorkflow(ctx context.Context, canonicalKey, platform, country string) (*Workflow, error)
	RecordObservation(ctx context.Context, canonicalKey string, obs collector.Observation, sampleDate time.Time) (created bool, err error)
	AppendRunLog(ctx context.Context, run *CollectionRun) error

	// Read surface.
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]Workflow, int64, error)
	GetWorkflow(ctx context.Context, id uint) (*Workflow, error)
	ListSamples(ctx context.Context, workflowID uint) ([]MetricSample, error)
	LatestSample(ctx context.Context, workflowID uint) (*MetricSample, error)
	ListRuns(ctx context.Context, limit int) ([]CollectionRun, error)
	PlatformStats(ctx context.Context) ([]PlatformStat, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Workflow{},
		&MetricSample{},
		&CollectionRun{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Pipeline writes ---

func (s *store) FindWorkflow(
	ctx context.Context, canonicalKey, platform, country string,
) (*Workflow, error) {
	var workflow Workflow
	if err := s.db.WithContext(ctx).
		Where("canonical_key = ? AND platform = ? AND country = ?",
			canonicalKey, platform, country).
		First(&workflow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("finding workflow %q/%s/%s: %w",
				canonicalKey, platform, country, ErrNotFound)
		}

		return nil, fmt.Errorf("finding workflow: %w", err)
	}

	return &workflow, nil
}

// RecordObservation persists one observation atomically: the workflow
// is created on first sight (or its display metadata refreshed), and
// the sample for sampleDate is inserted or replaced, all in one
// transaction. A workflow row therefore never exists without at least
// one sample.
func (s *store) RecordObservation(
	ctx context.Context,
	canonicalKey string,
	obs collector.Observation,
	sampleDate time.Time,
) (bool, error) {
	created := false
	sampleDate = sampleDate.UTC().Truncate(24 * time.Hour)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workflow Workflow

		err := tx.Where("canonical_key = ? AND platform = ? AND country = ?",
			canonicalKey, obs.Platform, obs.Country).
			First(&workflow).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			workflow = Workflow{
				DisplayName:  obs.DisplayName,
				CanonicalKey: canonicalKey,
				Description:  obs.Description,
				Platform:     obs.Platform,
				Country:      obs.Country,
				SourceURL:    obs.SourceURL,
				FirstSeenAt:  obs.ObservedAt,
				LastSeenAt:   obs.ObservedAt,
			}

			if err := tx.Create(&workflow).Error; err != nil {
				return fmt.Errorf("creating workflow %q: %w", canonicalKey, err)
			}

			created = true
		case err != nil:
			return fmt.Errorf("looking up workflow %q: %w", canonicalKey, err)
		default:
			// Refresh display metadata on re-observation.
			workflow.DisplayName = obs.DisplayName
			workflow.Description = obs.Description
			workflow.SourceURL = obs.SourceURL
			workflow.LastSeenAt = obs.ObservedAt

			if err := tx.Save(&workflow).Error; err != nil {
				return fmt.Errorf("refreshing workflow %q: %w", canonicalKey, err)
			}
		}

		sample := MetricSample{
			WorkflowID:         workflow.ID,
			SampleDate:         sampleDate,
			Views:              obs.Metrics.Views,
			Likes:              obs.Metrics.Likes,
			Comments:           obs.Metrics.Comments,
			Replies:            obs.Metrics.Replies,
			UniqueContributors: obs.Metrics.UniqueContributors,
			SearchVolume:       obs.Metrics.SearchVolume,
			InterestScore:      obs.Metrics.InterestScore,
			LikeToViewRatio:    obs.Metrics.LikeToViewRatio,
			CommentToViewRatio: obs.Metrics.CommentToViewRatio,
			TrendPercentage:    obs.Metrics.TrendPercentage,
			EngagementScore:    obs.Metrics.EngagementScore,
			RecordedAt:         time.Now().UTC(),
		}

		// Same-date re-runs replace the metric columns in place.
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "workflow_id"}, {Name: "sample_date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"views", "likes", "comments", "replies",
				"unique_contributors", "search_volume", "interest_score",
				"like_to_view_ratio", "comment_to_view_ratio",
				"trend_percentage", "engagement_score", "recorded_at",
			}),
		}).Create(&sample).Error; err != nil {
			return fmt.Errorf("upserting sample for workflow %d: %w",
				workflow.ID, err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, fmt.Errorf("recording observation %q: %w",
				canonicalKey, ErrConflict)
		}

		return false, err
	}

	return created, nil
}

func (s *store) AppendRunLog(ctx context.Context, run *CollectionRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("appending run log: %w", err)
	}

	return nil
}

// --- Read surface ---

const latestSampleJoin = `LEFT JOIN metric_samples ms ON ms.workflow_id = workflows.id ` +
	`AND ms.sample_date = (SELECT MAX(sample_date) FROM metric_samples WHERE workflow_id = workflows.id)`

func (s *store) ListWorkflows(
	ctx context.Context, filter WorkflowFilter,
) ([]Workflow, int64, error) {
	q := s.db.WithContext(ctx).Model(&Workflow{})

	if filter.Platform != "" {
		q = q.Where("workflows.platform = ?", filter.Platform)
	}

	if filter.Country != "" {
		q = q.Where("workflows.country = ?", filter.Country)
	}

	if filter.Search != "" {
		q = q.Where(`workflows.canonical_key LIKE ? ESCAPE '\'`,
			"%"+escapeLike(filter.Search)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting workflows: %w", err)
	}

	dir := "DESC"
	if filter.Order == "asc" {
		dir = "ASC"
	}

	switch filter.SortBy {
	case "engagement_score":
		q = q.Joins(latestSampleJoin).
			Order("ms.engagement_score " + dir)
	default:
		q = q.Order("workflows.created_at " + dir)
	}

	if filter.Size > 0 {
		q = q.Limit(filter.Size)

		if filter.Page > 1 {
			q = q.Offset((filter.Page - 1) * filter.Size)
		}
	}

	var workflows []Workflow
	if err := q.Find(&workflows).Error; err != nil {
		return nil, 0, fmt.Errorf("listing workflows: %w", err)
	}

	return workflows, total, nil
}

func (s *store) GetWorkflow(ctx context.Context, id uint) (*Workflow, error) {
	var workflow Workflow
	if err := s.db.WithContext(ctx).First(&workflow, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("getting workflow %d: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting workflow %d: %w", id, err)
	}

	return &workflow, nil
}

func (s *store) ListSamples(
	ctx context.Context, workflowID uint,
) ([]MetricSample, error) {
	var samples []MetricSample
	if err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("sample_date ASC").
		Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("listing samples: %w", err)
	}

	return samples, nil
}

func (s *store) LatestSample(
	ctx context.Context, workflowID uint,
) (*MetricSample, error) {
	var sample MetricSample
	if err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("sample_date DESC").
		First(&sample).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("latest sample for workflow %d: %w",
				workflowID, ErrNotFound)
		}

		return nil, fmt.Errorf("latest sample for workflow %d: %w",
			workflowID, err)
	}

	return &sample, nil
}

func (s *store) ListRuns(
	ctx context.Context, limit int,
) ([]CollectionRun, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC, id DESC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []CollectionRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing collection runs: %w", err)
	}

	return runs, nil
}

func (s *store) PlatformStats(ctx context.Context) ([]PlatformStat, error) {
	type row struct {
		Platform      string
		Country       string
		Count         int
		AvgEngagement float64
	}

	var rows []row
	if err := s.db.WithContext(ctx).
		Model(&Workflow{}).
		Select("workflows.platform, workflows.country, COUNT(*) AS count, "+
			"COALESCE(AVG(ms.engagement_score), 0) AS avg_engagement").
		Joins(latestSampleJoin).
		Group("workflows.platform, workflows.country").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregating platform stats: %w", err)
	}

	byPlatform := make(map[string]*PlatformStat, 3)

	var order []string

	for _, r := range rows {
		stat, ok := byPlatform[r.Platform]
		if !ok {
			stat = &PlatformStat{
				Platform:  r.Platform,
				Countries: make(map[string]int, 2),
			}
			byPlatform[r.Platform] = stat

			order = append(order, r.Platform)
		}

		stat.Countries[r.Country] = r.Count
		stat.TotalWorkflows += r.Count

		// Weighted mean across country groups.
		stat.AvgEngagement += r.AvgEngagement * float64(r.Count)
	}

	stats := make([]PlatformStat, 0, len(order))

	for _, platform := range order {
		stat := byPlatform[platform]
		if stat.TotalWorkflows > 0 {
			stat.AvgEngagement /= float64(stat.TotalWorkflows)
		}

		stats = append(stats, *stat)
	}

	return stats, nil
}

// likeEscaper escapes LIKE metacharacters in user-supplied search input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
