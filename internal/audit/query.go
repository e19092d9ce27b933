// query.go applies composable filters over an in-memory audit record collection,
// returning matches in most-recent-first order.
package audit

import (
	"sort"
	"strings"
	"time"

	"github.com/stocktrail/stocktrail/internal/db/models"
)

// DateRange bounds CreatedAt inclusively on both sides. Either bound may be
// nil to leave that side open.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Filter narrows an audit record collection. Zero-valued fields impose no
// constraint; populated fields combine with logical AND.
type Filter struct {
	// Search matches case-insensitively against actor name/email, the
	// operation display label, the table name, and the record id substring.
	Search string `json:"search,omitempty"`
	// Operation restricts to a single operation kind.
	Operation models.Operation `json:"operation,omitempty"`
	// Category restricts to a single table name.
	Category string `json:"category,omitempty"`
	// DateRange bounds CreatedAt inclusively.
	DateRange *DateRange `json:"date_range,omitempty"`
}

// Query returns the subset of records matching the filter, ordered by
// CreatedAt descending. Records with equal timestamps keep their original
// relative order (stable sort). The input slice is not modified; callers may
// window the returned sequence for pagination.
func Query(records []*models.AuditRecord, filter Filter) []*models.AuditRecord {
	matched := make([]*models.AuditRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if matches(r, filter) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}

func matches(r *models.AuditRecord, f Filter) bool {
	if f.Operation != "" && r.Operation != f.Operation {
		return false
	}
	if f.Category != "" && r.TableName != f.Category {
		return false
	}
	if f.DateRange != nil {
		if f.DateRange.Start != nil && r.CreatedAt.Before(*f.DateRange.Start) {
			return false
		}
		if f.DateRange.End != nil && r.CreatedAt.After(*f.DateRange.End) {
			return false
		}
	}
	if f.Search != "" && !matchesSearch(r, f.Search) {
		return false
	}
	return true
}

// matchesSearch implements the free-text match across the record's display
// fields. All comparisons are case-insensitive substring matches.
func matchesSearch(r *models.AuditRecord, search string) bool {
	needle := strings.ToLower(search)

	if r.ActorName != nil && strings.Contains(strings.ToLower(*r.ActorName), needle) {
		return true
	}
	if r.ActorEmail != nil && strings.Contains(strings.ToLower(*r.ActorEmail), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(r.Operation.Label()), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(r.TableName), needle) {
		return true
	}
	if r.RecordID != nil && strings.Contains(strings.ToLower(*r.RecordID), needle) {
		return true
	}
	return false
}
