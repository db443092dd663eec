// Package processor turns one ready RAW file into one ledger row. It owns
// the ordering guarantee of the pipeline: a sample is handed onward for
// aggregation only after its ledger row is durably recorded.
package processor

import (
	"context"
	"errors"
	"log/slog"

	"rapidkrill/internal/calibration"
	"rapidkrill/internal/ledger"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/transform"
)

// Processor runs the transform for ready files and records outcomes.
type Processor struct {
	reader transform.Reader
	store  *ledger.Store
	cal    calibration.Calibration
	logger *slog.Logger
}

// New builds a processor with a fixed calibration snapshot.
func New(reader transform.Reader, store *ledger.Store, cal calibration.Calibration, logger *slog.Logger) *Processor {
	return &Processor{
		reader: reader,
		store:  store,
		cal:    cal,
		logger: logging.NewComponentLogger(logger, "processor"),
	}
}

// Process handles a single file end to end. The returned entry is the row
// recorded in the ledger, or nil when the file was already recorded by an
// earlier run. The returned sample is non-nil only when processing succeeded
// and produced a usable measurement; by then its ledger row is on disk.
func (p *Processor) Process(ctx context.Context, path string) (*ledger.Entry, *transform.Sample, error) {
	recorded, err := p.store.Has(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if recorded {
		p.logger.Debug("file already in ledger", logging.String(logging.FieldFile, path))
		return nil, nil, nil
	}

	sample, err := p.reader.Read(ctx, path, p.cal)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return p.recordFailure(ctx, path, err)
	}

	entry := entryFromSample(path, sample)
	inserted, err := p.record(ctx, entry)
	if err != nil {
		return nil, nil, err
	}
	if !inserted {
		// Lost the append-once race; the other writer owns the sample.
		return nil, nil, nil
	}

	if sample.Skipped {
		p.logger.Info("file skipped by transform",
			logging.String(logging.FieldFile, path),
			logging.String("reason", sample.SkipReason))
		return entry, nil, nil
	}

	p.logger.Info("file processed",
		logging.String(logging.FieldFile, path),
		logging.Float64("nasc", sample.NASC),
		logging.Float64("miles", sample.Miles))
	return entry, sample, nil
}

// recordFailure writes a failed row and reports success to the caller: a
// per-file failure never stops the pipeline.
func (p *Processor) recordFailure(ctx context.Context, path string, cause error) (*ledger.Entry, *transform.Sample, error) {
	entry := &ledger.Entry{
		Path:    path,
		Outcome: ledger.OutcomeFailed,
		Reason:  cause.Error(),
	}
	p.logger.Warn("file failed to process",
		logging.String(logging.FieldFile, path),
		logging.Error(cause))
	inserted, err := p.record(ctx, entry)
	if err != nil {
		return nil, nil, err
	}
	if !inserted {
		return nil, nil, nil
	}
	return entry, nil, nil
}

// record inserts the entry, reporting whether this call won the append-once
// race for the path.
func (p *Processor) record(ctx context.Context, entry *ledger.Entry) (bool, error) {
	if err := p.store.Record(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func entryFromSample(path string, sample *transform.Sample) *ledger.Entry {
	entry := &ledger.Entry{
		Path:      path,
		Outcome:   ledger.OutcomeSucceeded,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Miles:     sample.Miles,
		SeabedM:   sample.SeabedM,
	}
	if sample.Skipped {
		entry.Reason = sample.SkipReason
	} else {
		nasc := sample.NASC
		entry.NASC = &nasc
	}
	if !sample.Time.IsZero() {
		t := sample.Time.UTC()
		entry.SampleTime = &t
	}
	return entry
}
