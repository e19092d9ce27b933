// stats.go computes summary statistics over an audit record collection for dashboard
// display.
package audit

import "github.com/stocktrail/stocktrail/internal/db/models"

// DefaultRecentActivityLimit bounds the recent-activity list when the caller
// does not specify a limit.
const DefaultRecentActivityLimit = 10

// Stats summarises an audit record collection. Count maps contain only keys
// that actually occur; absent operation kinds and tables are not zero-filled.
type Stats struct {
	TotalOperations   int                      `json:"total_operations"`
	OperationsByType  map[models.Operation]int `json:"operations_by_type"`
	OperationsByTable map[string]int           `json:"operations_by_table"`
	RecentActivity    []*models.AuditRecord    `json:"recent_activity"`
}

// Aggregate computes counts by operation kind and by table plus the
// most-recent-first activity list, bounded to recentLimit entries
// (DefaultRecentActivityLimit when recentLimit <= 0). Deterministic for a
// given input collection; no side effects.
func Aggregate(records []*models.AuditRecord, recentLimit int) Stats {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentActivityLimit
	}

	stats := Stats{
		OperationsByType:  make(map[models.Operation]int),
		OperationsByTable: make(map[string]int),
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		stats.TotalOperations++
		stats.OperationsByType[r.Operation]++
		if r.TableName != "" {
			stats.OperationsByTable[r.TableName]++
		}
	}

	recent := Query(records, Filter{})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	stats.RecentActivity = recent

	return stats
}
