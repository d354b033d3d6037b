// Package services wires the tax model to the cache, the history store and
// the request queue.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"taxcalc/internal/amqp"
	"taxcalc/internal/cache"
	"taxcalc/internal/core"
	"taxcalc/internal/log"
	"taxcalc/internal/schedules"
	"taxcalc/internal/tax"
)

var (
	ErrHistoryUnavailable = errors.New("calculation history not configured")
	ErrQueueUnavailable   = errors.New("calculation queue not configured")
)

// HistoryWriter records finished calculations
type HistoryWriter interface {
	Save(ctx context.Context, c tax.Calculation) error
}

// HistoryReader lists recorded calculations, newest first
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]tax.Calculation, error)
}

// RequestPublisher queues calculations for a worker
type RequestPublisher interface {
	PublishCalculationRequest(ctx context.Context, msg *amqp.CalculationRequest) error
}

type resultKey struct {
	year  int
	pence uint64
}

// Calculator computes tax for a year and gross income. It is safe for
// concurrent use.
type Calculator struct {
	table     *schedules.Table
	results   *cache.LRUCache[resultKey, tax.Calculation]
	group     singleflight.Group
	writer    HistoryWriter
	reader    HistoryReader
	publisher RequestPublisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Calculator)

// WithCache caches up to size results for ttl
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Calculator) {
		c.results = cache.NewLRUCache[resultKey, tax.Calculation](size, ttl)
	}
}

// WithHistory records calculations to w. If w also implements
// HistoryReader it serves History.
func WithHistory(w HistoryWriter) Option {
	return func(c *Calculator) {
		c.writer = w
		if r, ok := w.(HistoryReader); ok {
			c.reader = r
		}
	}
}

// WithPublisher enables Enqueue
func WithPublisher(p RequestPublisher) Option {
	return func(c *Calculator) { c.publisher = p }
}

func NewCalculator(table *schedules.Table, logger *log.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		table:  table,
		logger: logger.WithComponent(log.ComponentCalculator),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Years lists the tax years the calculator knows, ascending
func (c *Calculator) Years() []int {
	return c.table.Years()
}

// ResultCache returns the result cache for registration with a
// cache.Manager, or nil when caching is off
func (c *Calculator) ResultCache() cache.Cleaner {
	if c.results == nil {
		return nil
	}
	return c.results
}

// CacheStats reports result cache effectiveness
func (c *Calculator) CacheStats() cache.Stats {
	if c.results == nil {
		return cache.Stats{}
	}
	return c.results.Stats()
}

// Compute returns the calculation without recording it. The result has a
// fresh ID and timestamp.
func (c *Calculator) Compute(ctx context.Context, year int, gross core.Money) (tax.Calculation, error) {
	return c.computeAs(ctx, c.newID(), year, gross)
}

func (c *Calculator) computeAs(ctx context.Context, id string, year int, gross core.Money) (tax.Calculation, error) {
	calc, hit, err := c.compute(year, gross)
	if err != nil {
		return tax.Calculation{}, err
	}
	calc.ID = id
	calc.CreatedAt = c.now().UTC()

	fields := log.NewFields().
		WithOperation(log.OpCalculate).
		WithCalculation(year, gross, calc.TotalTax)
	fields[log.FieldCacheHit] = hit
	fields[log.FieldCalculationID] = calc.ID
	c.logger.DebugContext(ctx, "Tax calculated", fields.ToSlice()...)

	return calc, nil
}

// Calculate computes and, when history is configured, records the result.
// A failure to record is logged and does not fail the calculation.
func (c *Calculator) Calculate(ctx context.Context, year int, gross core.Money) (tax.Calculation, error) {
	calc, err := c.Compute(ctx, year, gross)
	if err != nil {
		return tax.Calculation{}, err
	}
	if c.writer == nil {
		return calc, nil
	}
	if err := c.writer.Save(ctx, calc); err != nil {
		c.logger.ErrorContext(ctx, "Failed to record calculation",
			log.FieldCalculationID, calc.ID,
			log.FieldOperation, log.OpRecord,
			log.FieldError, err)
	}
	return calc, nil
}

// Record computes and records the result, returning any storage error
func (c *Calculator) Record(ctx context.Context, year int, gross core.Money) (tax.Calculation, error) {
	return c.RecordAs(ctx, c.newID(), year, gross)
}

// RecordAs is Record with a caller-chosen calculation ID. Recording the
// same ID twice fails with the history's duplicate error, which lets a
// redelivered request be recognised.
func (c *Calculator) RecordAs(ctx context.Context, id string, year int, gross core.Money) (tax.Calculation, error) {
	if c.writer == nil {
		return tax.Calculation{}, ErrHistoryUnavailable
	}
	if id == "" {
		return tax.Calculation{}, errors.New("record calculation: empty id")
	}
	calc, err := c.computeAs(ctx, id, year, gross)
	if err != nil {
		return tax.Calculation{}, err
	}
	if err := c.writer.Save(ctx, calc); err != nil {
		return tax.Calculation{}, fmt.Errorf("record calculation %s: %w", calc.ID, err)
	}
	return calc, nil
}

// Enqueue validates the year and queues the calculation for a worker. It
// returns the request ID.
func (c *Calculator) Enqueue(ctx context.Context, year int, gross core.Money) (string, error) {
	if c.publisher == nil {
		return "", ErrQueueUnavailable
	}
	if _, err := c.table.Lookup(year); err != nil {
		return "", err
	}

	msg := amqp.NewCalculationRequest(c.newID(), year, gross)
	if err := c.publisher.PublishCalculationRequest(ctx, msg); err != nil {
		return "", fmt.Errorf("enqueue calculation: %w", err)
	}

	c.logger.InfoContext(ctx, "Calculation queued",
		log.FieldOperation, log.OpEnqueue,
		log.FieldRequestID, msg.RequestID,
		log.FieldYear, year,
		log.FieldGrossPence, gross.TotalPence())
	return msg.RequestID, nil
}

// History returns up to limit recorded calculations, newest first
func (c *Calculator) History(ctx context.Context, limit int) ([]tax.Calculation, error) {
	if c.reader == nil {
		return nil, ErrHistoryUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	calcs, err := c.reader.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return calcs, nil
}

func (c *Calculator) compute(year int, gross core.Money) (tax.Calculation, bool, error) {
	key := resultKey{year: year, pence: gross.TotalPence()}
	if c.results != nil {
		if calc, ok := c.results.Get(key); ok {
			return clone(calc), true, nil
		}
	}

	flightKey := strconv.Itoa(year) + ":" + strconv.FormatUint(key.pence, 10)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		s, err := c.table.Lookup(year)
		if err != nil {
			return nil, err
		}
		calc := tax.Calculate(year, s, gross)
		if c.results != nil {
			c.results.Set(key, calc)
		}
		return calc, nil
	})
	if err != nil {
		return tax.Calculation{}, false, err
	}
	return clone(v.(tax.Calculation)), false, nil
}

// clone keeps callers from sharing a cached breakdown
func clone(calc tax.Calculation) tax.Calculation {
	calc.Breakdown = slices.Clone(calc.Breakdown)
	return calc
}
