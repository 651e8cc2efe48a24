package collector

import (
	"github.com/sirupsen/logrus"

	"github.com/flowpulse/flowpulse/pkg/config"
)

// BuildEnabled constructs the collectors enabled by configuration, in
// fixed source order: video, forum, trends. The set of sources is
// closed; adding one means adding a Collector implementation here.
func BuildEnabled(
	log logrus.FieldLogger,
	cfg *config.CollectionConfig,
) []Collector {
	collectors := make([]Collector, 0, 3)

	if cfg.Video.Enabled {
		collectors = append(collectors,
			NewVideoCollector(log, cfg.Video, cfg.Retry))
	}

	if cfg.Forum.Enabled {
		collectors = append(collectors,
			NewForumCollector(log, cfg.Forum, cfg.Retry))
	}

	if cfg.Trends.Enabled {
		collectors = append(collectors,
			NewTrendsCollector(log, cfg.Trends, cfg.Retry))
	}

	return collectors
}
