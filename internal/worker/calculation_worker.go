// Package worker processes queued calculation requests.
package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"taxcalc/internal/amqp"
	"taxcalc/internal/core"
	"taxcalc/internal/log"
	"taxcalc/internal/schedules"
	"taxcalc/internal/services"
	"taxcalc/internal/storage"
	"taxcalc/internal/tax"
)

// Recorder computes and stores a calculation under the given ID
type Recorder interface {
	RecordAs(ctx context.Context, id string, year int, gross core.Money) (tax.Calculation, error)
}

// CalculationWorker records each queued request in the history
type CalculationWorker struct {
	recorder Recorder
	logger   *log.Logger

	processed  atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	retried    atomic.Int64
}

func NewCalculationWorker(recorder Recorder, logger *log.Logger) *CalculationWorker {
	return &CalculationWorker{
		recorder: recorder,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRequest processes one message. Requests that can never succeed are
// returned as amqp.Permanent errors so they are dropped rather than
// requeued.
func (w *CalculationWorker) HandleRequest(ctx context.Context, msg *amqp.CalculationRequest) error {
	start := time.Now()
	logger := w.logger.With(log.FieldRequestID, msg.RequestID)

	logger.InfoContext(ctx, "Processing calculation request",
		log.FieldYear, msg.Year,
		log.FieldGrossPence, msg.Gross.TotalPence(),
		"queued_for", time.Since(msg.Timestamp).String())

	// The request ID doubles as the calculation ID, so a redelivered
	// message cannot be recorded twice.
	calc, err := w.recorder.RecordAs(ctx, msg.RequestID, msg.Year, msg.Gross)
	if errors.Is(err, storage.ErrDuplicate) {
		w.duplicates.Add(1)
		logger.InfoContext(ctx, "Calculation already recorded, acknowledging redelivery")
		return nil
	}
	if err != nil {
		if errors.Is(err, schedules.ErrUnknownYear) || errors.Is(err, services.ErrHistoryUnavailable) {
			w.rejected.Add(1)
			logger.WarnContext(ctx, "Rejecting calculation request", log.FieldError, err)
			return amqp.Permanent(err)
		}
		w.retried.Add(1)
		return err
	}

	w.processed.Add(1)
	fields := log.NewFields().
		WithOperation(log.OpRecord).
		WithCalculation(calc.Year, calc.Gross, calc.TotalTax)
	fields[log.FieldCalculationID] = calc.ID
	fields[log.FieldDuration] = time.Since(start).Milliseconds()
	logger.InfoContext(ctx, "Calculation recorded", fields.ToSlice()...)
	return nil
}

// Stats counts handled requests by outcome
type Stats struct {
	Processed  int64
	Duplicates int64
	Rejected   int64
	Retried    int64
}

func (w *CalculationWorker) Stats() Stats {
	return Stats{
		Processed:  w.processed.Load(),
		Duplicates: w.duplicates.Load(),
		Rejected:   w.rejected.Load(),
		Retried:    w.retried.Load(),
	}
}
