package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationSource is the queue the lifecycle pushes violation records onto.
// Pop returns repository.ErrQueueEmpty when the poll timed out.
type ViolationSource interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Requeue(ctx context.Context, recs []model.ViolationRecord) error
}

// ViolationWriter persists records to attempt_violations.
type ViolationWriter interface {
	CopyViolations(ctx context.Context, recs []model.ViolationRecord) error
	InsertViolation(ctx context.Context, rec model.ViolationRecord) error
}

var (
	_ ViolationSource = (*repository.ViolationQueue)(nil)
	_ ViolationWriter = (*repository.ViolationRepository)(nil)
)

// Options tunes the worker loop. Zero values fall back to the package defaults.
type Options struct {
	BatchSize       int
	BatchTimeout    time.Duration
	PollTimeout     time.Duration
	ErrorBackoff    time.Duration
	RequeueBackoff  time.Duration
	ShutdownTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = BatchSize
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = BatchTimeout
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = PollTimeout
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 3 * time.Second
	}
	if o.RequeueBackoff <= 0 {
		o.RequeueBackoff = 2 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	return o
}

// ViolationWorker drains the violation queue into Postgres in batches so the
// live monitor can count violations without scanning attempt logs.
type ViolationWorker struct {
	source  ViolationSource
	writer  ViolationWriter
	metrics *metrics.Metrics
	opts    Options
	log     zerolog.Logger
}

func NewViolationWorker(source ViolationSource, writer ViolationWriter, m *metrics.Metrics, opts Options, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		source:  source,
		writer:  writer,
		metrics: m,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "violation_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled, then flushes what is buffered.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.opts.BatchSize).Msg("ViolationWorker started")

	buffer := make([]model.ViolationRecord, 0, w.opts.BatchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= w.opts.BatchSize || time.Since(lastFlush) >= w.opts.BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch
		data, err := w.source.Pop(ctx, w.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, repository.ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				continue // next iteration takes the shutdown branch
			}
			w.log.Error().Err(err).Dur("backoff", w.opts.ErrorBackoff).Msg("Queue error, backing off")
			sleep(ctx, w.opts.ErrorBackoff)
			continue
		}

		// 4. Decode. Malformed payloads cannot be retried.
		var rec model.ViolationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			w.log.Error().Err(err).Str("data", string(data)).Msg("Discarding malformed violation")
			continue
		}
		buffer = append(buffer, rec)
	}
}

// flushSafe tries a bulk copy, then row-by-row inserts, then requeues rows
// that still failed.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationRecord) {
	err := w.writer.CopyViolations(ctx, batch)
	if err == nil {
		w.metrics.AddViolationsPersisted(len(batch))
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ViolationRecord) {
	var requeue []model.ViolationRecord
	persisted := 0

	for _, rec := range batch {
		if err := rec.Validate(); err != nil {
			w.log.Error().Err(err).Str("attempt_id", rec.AttemptID).Msg("Dropping invalid violation")
			continue
		}
		if err := w.writer.InsertViolation(ctx, rec); err != nil {
			w.log.Error().Err(err).Str("attempt_id", rec.AttemptID).Msg("Insert failed, requeueing")
			requeue = append(requeue, rec)
			continue
		}
		persisted++
	}
	w.metrics.AddViolationsPersisted(persisted)

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, recs []model.ViolationRecord) {
	if err := w.source.Requeue(ctx, recs); err != nil {
		w.log.Error().Err(err).Int("count", len(recs)).Msg("CRITICAL: Failed to requeue violations. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(recs)).Msg("Requeued failed violations")
	// Avoid thrashing while the database is down.
	sleep(ctx, w.opts.RequeueBackoff)
}

func (w *ViolationWorker) shutdown(buffer []model.ViolationRecord) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.ShutdownTimeout)
	defer cancel()
	w.flushSafe(ctx, buffer)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
