package ingest

import (
	"context"
	"errors"
	"time"

	"ReplayFM/apperr"
	"ReplayFM/core/session"
	"ReplayFM/core/stats"
	"ReplayFM/logger"
	"ReplayFM/model"
	"ReplayFM/repository"

	"github.com/google/uuid"
)

// Archiver stores the assembled raw export file durably.
type Archiver interface {
	ArchiveExport(ctx context.Context, sessionID, fileName string, payload []byte) error
}

// ProgressEvent is pushed to progress subscribers as a file moves through
// ingestion.
type ProgressEvent struct {
	SessionID      string              `json:"sessionId"`
	FileName       string              `json:"fileName"`
	Stage          string              `json:"stage"` // buffered | committed | failed
	ChunksReceived int                 `json:"chunksReceived"`
	TotalChunks    int                 `json:"totalChunks"`
	Report         *model.IngestReport `json:"report,omitempty"`
}

// ProgressNotifier fans progress events out to subscribers.
type ProgressNotifier interface {
	Publish(sessionID string, event ProgressEvent)
}

// Ingestor drives a chunk from the transport all the way to committed,
// aggregated events. At most one ingestion-or-recompute runs per session at
// a time; the session manager's keyed lock is the serialization point.
type Ingestor struct {
	manager    *session.Manager
	normalizer *Normalizer
	assembler  *Assembler
	events     repository.EventRepository
	aggregator *stats.Aggregator
	archiver   Archiver            // optional
	caches     session.CachePurger // optional
	notifier   ProgressNotifier    // optional
	timeout    time.Duration
}

// NewIngestor wires an ingestor. archiver, caches and notifier may be nil.
func NewIngestor(manager *session.Manager, normalizer *Normalizer, assembler *Assembler,
	events repository.EventRepository, aggregator *stats.Aggregator,
	archiver Archiver, caches session.CachePurger, notifier ProgressNotifier,
	timeout time.Duration) *Ingestor {
	return &Ingestor{
		manager:    manager,
		normalizer: normalizer,
		assembler:  assembler,
		events:     events,
		aggregator: aggregator,
		archiver:   archiver,
		caches:     caches,
		notifier:   notifier,
		timeout:    timeout,
	}
}

// SubmitChunk buffers one transport chunk. When the chunk completes its
// file, the file is normalized, committed and aggregated before returning;
// the report is nil while the file is still missing chunks.
func (ing *Ingestor) SubmitChunk(ctx context.Context, chunk *model.ChunkUpload) (*model.IngestReport, error) {
	if _, err := ing.manager.Require(ctx, chunk.SessionID); err != nil {
		return nil, err
	}

	unlock := ing.manager.Lock(chunk.SessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, ing.timeout)
	defer cancel()

	buffered, complete, err := ing.assembler.Add(ctx, chunk)
	if err != nil {
		return nil, ing.mapTimeout(err)
	}

	if !complete {
		ing.publish(ProgressEvent{
			SessionID:      chunk.SessionID,
			FileName:       chunk.FileName,
			Stage:          "buffered",
			ChunksReceived: buffered,
			TotalChunks:    chunk.TotalChunks,
		})
		return nil, nil
	}

	report, err := ing.commitFile(ctx, chunk.SessionID, chunk.FileName, chunk.TotalChunks)
	if err != nil {
		ing.publish(ProgressEvent{
			SessionID:   chunk.SessionID,
			FileName:    chunk.FileName,
			Stage:       "failed",
			TotalChunks: chunk.TotalChunks,
		})
		return nil, ing.mapTimeout(err)
	}

	ing.publish(ProgressEvent{
		SessionID:      chunk.SessionID,
		FileName:       chunk.FileName,
		Stage:          "committed",
		ChunksReceived: chunk.TotalChunks,
		TotalChunks:    chunk.TotalChunks,
		Report:         report,
	})
	return report, nil
}

// commitFile assembles, normalizes, commits and aggregates one complete
// file. Caller holds the session lock.
func (ing *Ingestor) commitFile(ctx context.Context, sessionID, fileName string, totalChunks int) (*model.IngestReport, error) {
	records, raw, err := ing.assembler.Assemble(ctx, sessionID, fileName, totalChunks)
	if err != nil {
		return nil, err
	}

	normalized := ing.normalizer.Normalize(sessionID, records)

	inserted, duplicates, err := ing.events.InsertBatch(ctx, sessionID, normalized.Events)
	if err != nil {
		return nil, err
	}

	if err := ing.aggregator.Recompute(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := ing.manager.MarkPopulated(ctx, sessionID); err != nil {
		return nil, err
	}

	if ing.caches != nil {
		if err := ing.caches.InvalidateSession(ctx, sessionID); err != nil {
			logger.Warn("Failed to invalidate stats cache after ingest",
				logger.String("sessionId", sessionID), logger.ErrorField(err))
		}
	}
	if ing.archiver != nil {
		if err := ing.archiver.ArchiveExport(ctx, sessionID, fileName, raw); err != nil {
			logger.Warn("Failed to archive raw export",
				logger.String("sessionId", sessionID),
				logger.String("fileName", fileName),
				logger.ErrorField(err))
		}
	}

	report := &model.IngestReport{
		BatchID:    uuid.NewString(),
		FileName:   fileName,
		Accepted:   inserted,
		Duplicates: duplicates,
		Skipped:    normalized.Skipped,
		Warnings:   normalized.Warnings,
	}

	logger.Info("Ingestion batch committed",
		logger.String("sessionId", sessionID),
		logger.String("fileName", fileName),
		logger.String("batchId", report.BatchID),
		logger.Int("accepted", report.Accepted),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("skipped", report.Skipped),
		logger.Int("warnings", report.Warnings))
	return report, nil
}

// IngestRecords commits a whole record set in one batch, bypassing chunk
// assembly. Used by the directory import CLI.
func (ing *Ingestor) IngestRecords(ctx context.Context, sessionID, fileName string, records []model.RawRecord) (*model.IngestReport, error) {
	if _, err := ing.manager.Require(ctx, sessionID); err != nil {
		return nil, err
	}

	unlock := ing.manager.Lock(sessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, ing.timeout)
	defer cancel()

	normalized := ing.normalizer.Normalize(sessionID, records)

	inserted, duplicates, err := ing.events.InsertBatch(ctx, sessionID, normalized.Events)
	if err != nil {
		return nil, ing.mapTimeout(err)
	}
	if err := ing.aggregator.Recompute(ctx, sessionID); err != nil {
		return nil, ing.mapTimeout(err)
	}
	if err := ing.manager.MarkPopulated(ctx, sessionID); err != nil {
		return nil, err
	}
	if ing.caches != nil {
		if err := ing.caches.InvalidateSession(ctx, sessionID); err != nil {
			logger.Warn("Failed to invalidate stats cache after import",
				logger.String("sessionId", sessionID), logger.ErrorField(err))
		}
	}

	return &model.IngestReport{
		BatchID:    uuid.NewString(),
		FileName:   fileName,
		Accepted:   inserted,
		Duplicates: duplicates,
		Skipped:    normalized.Skipped,
		Warnings:   normalized.Warnings,
	}, nil
}

// Recompute rebuilds a session's aggregates from its stored events, under
// the same per-session lock ingestion uses.
func (ing *Ingestor) Recompute(ctx context.Context, sessionID string) error {
	if _, err := ing.manager.Require(ctx, sessionID); err != nil {
		return err
	}

	unlock := ing.manager.Lock(sessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, ing.timeout)
	defer cancel()

	if err := ing.aggregator.Recompute(ctx, sessionID); err != nil {
		return ing.mapTimeout(err)
	}
	if ing.caches != nil {
		if err := ing.caches.InvalidateSession(ctx, sessionID); err != nil {
			logger.Warn("Failed to invalidate stats cache after recompute",
				logger.String("sessionId", sessionID), logger.ErrorField(err))
		}
	}
	return nil
}

// mapTimeout turns a context deadline into a retryable transient error so
// the caller can retry the chunk instead of treating it as permanent.
func (ing *Ingestor) mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.TransientStore("ingestion timed out", err)
	}
	return err
}

func (ing *Ingestor) publish(event ProgressEvent) {
	if ing.notifier != nil {
		ing.notifier.Publish(event.SessionID, event)
	}
}
