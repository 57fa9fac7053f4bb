// Package audit implements the append-only, best-effort audit event log:
// one record per administrative action and one per proxied request,
// written asynchronously (channel + ticker + batch flush) so a slow or
// failing write never blocks the caller's response.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// LogRepository persists completed AuditLogs in bulk.
type LogRepository interface {
	InsertAuditLogs(ctx context.Context, entries []model.AuditLog) error
}

// Entry is one audit event to be written, before its write-time fields
// (timestamp) are stamped.
type Entry struct {
	UserID       *primitive.ObjectID
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	ClientIP     string
	UserAgent    string
	Status       model.AuditStatus
	ErrorMessage string
}

// Writer is an async, buffered audit log writer.
type Writer struct {
	repo    LogRepository
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates a Writer. Call Start to begin processing entries.
func NewWriter(repo LogRepository, logger *slog.Logger) *Writer {
	return &Writer{
		repo:    repo,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background flush loop in a goroutine and returns at
// once. The loop flushes pending entries and exits when ctx is cancelled
// or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged —
// audit write failures must not propagate.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resourceType", entry.ResourceType)
	}
}

// LogRequest is a convenience wrapper that extracts client IP and
// user-agent from r before enqueueing.
func (w *Writer) LogRequest(r *http.Request, userID *primitive.ObjectID, action, resourceType, resourceID string, status model.AuditStatus, details map[string]any, errMsg string) {
	w.Log(Entry{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		ClientIP:     ClientIP(r).String(),
		UserAgent:    r.UserAgent(),
		Status:       status,
		ErrorMessage: errMsg,
	})
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	logs := make([]model.AuditLog, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, model.AuditLog{
			ID:           primitive.NewObjectID(),
			UserID:       e.UserID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Details:      e.Details,
			ClientIP:     e.ClientIP,
			UserAgent:    e.UserAgent,
			Timestamp:    now,
			Status:       e.Status,
			ErrorMessage: e.ErrorMessage,
		})
	}

	if w.repo == nil {
		return
	}
	if err := w.repo.InsertAuditLogs(ctx, logs); err != nil {
		w.logger.Error("writing audit log batch", "error", err, "count", len(logs))
	}
}

// ClientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func ClientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
