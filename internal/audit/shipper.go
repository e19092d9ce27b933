// shipper.go routes committed audit records to external destinations (file, webhook)
// so the trail can feed a SIEM or log aggregator independently of the primary store.
// Shipping is best-effort: a failed delivery never fails the recording call, it is
// logged and counted instead.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/stocktrail/stocktrail/internal/db/models"
	"github.com/stocktrail/stocktrail/internal/telemetry"
)

// Shipper delivers committed audit records to an external destination.
type Shipper interface {
	// Ship sends one record to the destination.
	Ship(ctx context.Context, record *models.AuditRecord) error
	// Close flushes buffered records and releases resources.
	Close() error
}

// ShipperConfig selects and configures a single shipping destination.
type ShipperConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Type    string         `mapstructure:"type"` // "webhook" or "file"
	Webhook *WebhookConfig `mapstructure:"webhook"`
	File    *FileConfig    `mapstructure:"file"`
}

// WebhookConfig configures HTTP delivery of audit records.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	// Timeout bounds each HTTP request (default 10s).
	Timeout time.Duration `mapstructure:"timeout"`
	// BatchSize > 0 enables batching; records are flushed when the batch
	// fills or FlushInterval elapses.
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// FileConfig configures newline-delimited JSON delivery to a local file.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// MultiShipper fans a record out to every configured destination.
type MultiShipper struct {
	mu       sync.RWMutex
	shippers []Shipper
}

// NewMultiShipper builds a MultiShipper from destination configs, skipping
// disabled entries. An unknown or incomplete destination config is an error.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var (
			shipper Shipper
			err     error
		)
		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}
		ms.shippers = append(ms.shippers, shipper)
	}
	return ms, nil
}

// Ship sends the record to all destinations, continuing past individual
// failures. The last error, if any, is returned.
func (ms *MultiShipper) Ship(ctx context.Context, record *models.AuditRecord) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, record); err != nil {
			lastErr = err
			slog.Warn("audit shipper delivery failed", "error", err)
		}
	}
	return lastErr
}

// Close closes all destinations.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper posts audit records to an HTTP endpoint, optionally batched.
type WebhookShipper struct {
	cfg       *WebhookConfig
	client    *http.Client
	batchCh   chan *models.AuditRecord
	batch     []*models.AuditRecord
	batchMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a webhook shipper. When batching is configured a
// background flusher goroutine is started.
func NewWebhookShipper(cfg *WebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ws := &WebhookShipper{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		batchCh: make(chan *models.AuditRecord, 1000),
		closeCh: make(chan struct{}),
	}
	if cfg.BatchSize > 0 {
		go ws.processBatches()
	}
	return ws, nil
}

func (ws *WebhookShipper) processBatches() {
	flushInterval := ws.cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record := <-ws.batchCh:
			ws.batchMu.Lock()
			ws.batch = append(ws.batch, record)
			if len(ws.batch) >= ws.cfg.BatchSize {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ticker.C:
			ws.batchMu.Lock()
			if len(ws.batch) > 0 {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ws.closeCh:
			ws.batchMu.Lock()
			if len(ws.batch) > 0 {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
			return
		}
	}
}

// flushBatch sends the accumulated batch. Caller must hold batchMu.
func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}

	data, err := json.Marshal(ws.batch)
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err)
		ws.batch = ws.batch[:0]
		return
	}

	timeout := ws.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("webhook").Inc()
		slog.Warn("failed to send audit batch", "error", err, "records", len(ws.batch))
	} else {
		telemetry.AuditRecordsShippedTotal.WithLabelValues("webhook").Add(float64(len(ws.batch)))
	}
	ws.batch = ws.batch[:0]
}

// Ship queues the record for batched delivery, or sends it directly when
// batching is disabled or the queue is full.
func (ws *WebhookShipper) Ship(ctx context.Context, record *models.AuditRecord) error {
	if ws.cfg.BatchSize > 0 {
		select {
		case ws.batchCh <- record:
			return nil
		default:
			// Queue full, fall through to a direct send.
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("webhook").Inc()
		return err
	}
	telemetry.AuditRecordsShippedTotal.WithLabelValues("webhook").Inc()
	return nil
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the batch flusher, flushing any buffered records first.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	return nil
}

// FileShipper appends audit records as newline-delimited JSON to a local file
// with size-based rotation.
type FileShipper struct {
	cfg  *FileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the destination file in append mode.
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

// Ship appends one record, rotating the file first if it exceeds the size cap.
func (fs *FileShipper) Ship(ctx context.Context, record *models.AuditRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Warn("failed to rotate audit log file", "error", err)
			}
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	telemetry.AuditRecordsShippedTotal.WithLabelValues("file").Inc()
	return nil
}

// rotate shifts existing backups up by one and reopens a fresh file.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i)
		newPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i+1)
		_ = os.Rename(oldPath, newPath)
	}
	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the destination file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
