package db

import (
	"context"
	"encoding/json"
	"fmt"

	"jobmate/job-ingest/internal/model"
)

// LoadSearchConfigs fetches every search config that carries a scrape
// schedule. Inactive configs are returned with Enabled false so they are
// registered paused.
func LoadSearchConfigs(ctx context.Context, db Querier) ([]model.SearchConfig, error) {
	rows, err := db.Query(ctx,
		`SELECT id::text, user_id::text, COALESCE(name, ''), source,
		        interval_minutes, COALESCE(feeds, '{}'), COALESCE(criteria, '{}'::jsonb),
		        is_active
		 FROM search_configs
		 WHERE source IS NOT NULL AND interval_minutes IS NOT NULL
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query search_configs: %w", err)
	}
	defer rows.Close()

	var configs []model.SearchConfig
	for rows.Next() {
		var (
			c        model.SearchConfig
			src      string
			criteria []byte
		)
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Name, &src,
			&c.IntervalMinutes, &c.Feeds, &criteria,
			&c.Enabled,
		); err != nil {
			return nil, fmt.Errorf("scan search_configs: %w", err)
		}
		c.Source = model.Source(src)
		if len(criteria) > 0 {
			if err := json.Unmarshal(criteria, &c.Criteria); err != nil {
				return nil, fmt.Errorf("search config %s criteria: %w", c.ID, err)
			}
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}
