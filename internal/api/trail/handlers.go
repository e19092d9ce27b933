// Package trail implements the HTTP surface of the audit trail: recording entries on
// behalf of the entity-mutation flow and serving filtered, described, and aggregated
// views of the history. Authentication is handled by the fronting platform, which
// forwards the acting identity in X-Actor-* headers.
package trail

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stocktrail/stocktrail/internal/audit"
	"github.com/stocktrail/stocktrail/internal/db/models"
	"github.com/stocktrail/stocktrail/internal/db/repositories"
)

// searchFetchCap bounds how many rows are pulled into memory when a free-text
// search or aggregation needs the full filtered set rather than one page.
const searchFetchCap = 1000

// Handlers serves the audit trail endpoints.
type Handlers struct {
	repo        *repositories.AuditRepository
	recorder    *audit.Recorder
	describer   *audit.Describer
	recentLimit int
}

// NewHandlers creates the audit trail handler set.
func NewHandlers(repo *repositories.AuditRepository, recorder *audit.Recorder, describer *audit.Describer, recentLimit int) *Handlers {
	return &Handlers{
		repo:        repo,
		recorder:    recorder,
		describer:   describer,
		recentLimit: recentLimit,
	}
}

// RecordRequest is the payload for recording one audit entry.
type RecordRequest struct {
	Operation         string                 `json:"operation" binding:"required"`
	TableName         string                 `json:"table_name"`
	RecordID          *string                `json:"record_id"`
	OldValues         models.Snapshot        `json:"old_values"`
	NewValues         models.Snapshot        `json:"new_values"`
	Metadata          map[string]interface{} `json:"metadata"`
	ActionDescription *string                `json:"action_description"`
}

// RecordHandler persists one audit entry on behalf of the mutation flow.
// POST /api/v1/audit
func (h *Handlers) RecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		var opts []audit.RecordOption
		if req.ActionDescription != nil && *req.ActionDescription != "" {
			opts = append(opts, audit.WithDescription(*req.ActionDescription))
		}

		record, err := h.recorder.Record(
			c.Request.Context(),
			models.Operation(req.Operation),
			req.TableName,
			req.RecordID,
			actorFromRequest(c),
			req.OldValues,
			req.NewValues,
			req.Metadata,
			opts...,
		)
		if err != nil {
			if isContractViolation(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record audit entry"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"record": record})
	}
}

// ListHandler returns a filtered page of the trail, most recent first.
// GET /api/v1/audit?search=&operation=&category=&start=&end=&page=&per_page=
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := filterFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}
		offset := (page - 1) * perPage

		hints := hintsFromFilter(filter)

		// Without free text the database can narrow and window directly.
		// With free text the match runs in memory, so pull the filtered set
		// (bounded) and let the query engine search, order, and window.
		var (
			records []*models.AuditRecord
			total   int
		)
		if filter.Search == "" {
			records, total, err = h.repo.List(c.Request.Context(), hints, perPage, offset)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit records"})
				return
			}
		} else {
			all, _, listErr := h.repo.List(c.Request.Context(), hints, searchFetchCap, 0)
			if listErr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit records"})
				return
			}
			matched := audit.Query(all, filter)
			total = len(matched)
			records = window(matched, offset, perPage)
		}

		entries := make([]gin.H, 0, len(records))
		for _, record := range records {
			entries = append(entries, gin.H{
				"record":      record,
				"description": h.describer.Describe(record),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// GetHandler returns a single record with its description and field changes.
// GET /api/v1/audit/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit record"})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Audit record not found"})
			return
		}

		changes := audit.Diff(record.OldValues, record.NewValues)
		changeViews := make([]gin.H, 0, len(changes))
		for _, change := range changes {
			changeViews = append(changeViews, gin.H{
				"field":       change.Field,
				"old_value":   change.OldValue,
				"new_value":   change.NewValue,
				"old_display": audit.FormatValue(change.OldValue),
				"new_display": audit.FormatValue(change.NewValue),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"record":      record,
			"description": h.describer.Describe(record),
			"changes":     changeViews,
		})
	}
}

// StatsHandler returns aggregate counts and recent activity for the dashboard.
// GET /api/v1/audit/stats
func (h *Handlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, _, err := h.repo.List(c.Request.Context(), repositories.AuditFilterHints{}, searchFetchCap, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit statistics"})
			return
		}

		stats := audit.Aggregate(records, h.recentLimit)

		// Headline count for the last day, straight from the database so it
		// is exact even when the in-memory set is capped.
		last24h, err := h.repo.CountSince(c.Request.Context(), time.Now().Add(-24*time.Hour))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit statistics"})
			return
		}

		recent := make([]gin.H, 0, len(stats.RecentActivity))
		for _, record := range stats.RecentActivity {
			recent = append(recent, gin.H{
				"record":      record,
				"description": h.describer.Describe(record),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"total_operations":    stats.TotalOperations,
			"operations_by_type":  stats.OperationsByType,
			"operations_by_table": stats.OperationsByTable,
			"operations_last_24h": last24h,
			"recent_activity":     recent,
		})
	}
}

// ExportHandler streams the filtered trail as CSV or JSON. The export itself
// is a tracked operation: a record with operation=export is written with the
// format and row count in its metadata.
// GET /api/v1/audit/export?format=csv|json
func (h *Handlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := filterFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		format := c.DefaultQuery("format", "json")
		if format != "json" && format != "csv" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
			return
		}

		all, _, err := h.repo.List(c.Request.Context(), hintsFromFilter(filter), searchFetchCap, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export audit records"})
			return
		}
		matched := audit.Query(all, filter)

		// Record the export before streaming; an unrecordable export is
		// refused rather than silently untracked.
		_, err = h.recorder.Record(
			c.Request.Context(),
			models.OperationExport,
			"audit_records",
			nil,
			actorFromRequest(c),
			nil, nil,
			map[string]interface{}{"format": format, "rows": len(matched)},
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record export operation"})
			return
		}

		switch format {
		case "csv":
			h.writeCSV(c, matched)
		default:
			c.JSON(http.StatusOK, gin.H{"records": matched, "total": len(matched)})
		}
	}
}

// writeCSV streams records as CSV with display-formatted values.
func (h *Handlers) writeCSV(c *gin.Context, records []*models.AuditRecord) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	_ = w.Write([]string{"id", "created_at", "operation", "table", "record_id", "actor", "description"})
	for _, record := range records {
		recordID := ""
		if record.RecordID != nil {
			recordID = *record.RecordID
		}
		_ = w.Write([]string{
			record.ID,
			record.CreatedAt.Format(time.RFC3339),
			string(record.Operation),
			record.TableName,
			recordID,
			record.Actor(),
			h.describer.Describe(record),
		})
	}
}

// filterFromQuery parses the shared filter query parameters.
func filterFromQuery(c *gin.Context) (audit.Filter, error) {
	filter := audit.Filter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
	}

	if op := c.Query("operation"); op != "" {
		operation := models.Operation(op)
		if !operation.IsValid() {
			return audit.Filter{}, errors.New("unknown operation kind: " + op)
		}
		filter.Operation = operation
	}

	var dateRange audit.DateRange
	if start := c.Query("start"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return audit.Filter{}, errors.New("start must be an RFC3339 timestamp")
		}
		dateRange.Start = &t
	}
	if end := c.Query("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return audit.Filter{}, errors.New("end must be an RFC3339 timestamp")
		}
		dateRange.End = &t
	}
	if dateRange.Start != nil || dateRange.End != nil {
		filter.DateRange = &dateRange
	}

	return filter, nil
}

// hintsFromFilter maps the coarse filter fields onto database-level hints.
func hintsFromFilter(filter audit.Filter) repositories.AuditFilterHints {
	hints := repositories.AuditFilterHints{}
	if filter.Operation != "" {
		op := filter.Operation
		hints.Operation = &op
	}
	if filter.Category != "" {
		category := filter.Category
		hints.TableName = &category
	}
	if filter.DateRange != nil {
		hints.StartDate = filter.DateRange.Start
		hints.EndDate = filter.DateRange.End
	}
	return hints
}

// actorFromRequest assembles the acting identity from the headers forwarded by
// the fronting platform, plus the request's own client address and user agent.
func actorFromRequest(c *gin.Context) models.ActorContext {
	actor := models.ActorContext{}
	if v := c.GetHeader("X-Actor-ID"); v != "" {
		actor.ID = &v
	}
	if v := c.GetHeader("X-Actor-Name"); v != "" {
		actor.Name = &v
	}
	if v := c.GetHeader("X-Actor-Email"); v != "" {
		actor.Email = &v
	}
	if v := c.GetHeader("X-Session-ID"); v != "" {
		actor.SessionID = &v
	}
	if ip := c.ClientIP(); ip != "" {
		actor.IPAddress = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		actor.UserAgent = &ua
	}
	return actor
}

// window slices one page out of an ordered result set.
func window(records []*models.AuditRecord, offset, limit int) []*models.AuditRecord {
	if offset >= len(records) {
		return []*models.AuditRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// isContractViolation reports whether err is a fail-fast input error rather
// than a storage failure.
func isContractViolation(err error) bool {
	return errors.Is(err, audit.ErrUnknownOperation) ||
		errors.Is(err, audit.ErrMissingOldValues) ||
		errors.Is(err, audit.ErrMissingNewValues)
}
