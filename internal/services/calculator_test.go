package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxcalc/internal/amqp"
	"taxcalc/internal/core"
	"taxcalc/internal/log"
	"taxcalc/internal/schedules"
	"taxcalc/internal/tax"
)

type fakeHistory struct {
	mu    sync.Mutex
	saved []tax.Calculation
	err   error
}

func (f *fakeHistory) Save(_ context.Context, c tax.Calculation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, c)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]tax.Calculation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []tax.Calculation
	for i := len(f.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.saved[i])
	}
	return out, nil
}

type fakePublisher struct {
	msgs []*amqp.CalculationRequest
	err  error
}

func (f *fakePublisher) PublishCalculationRequest(_ context.Context, msg *amqp.CalculationRequest) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func newTestCalculator(opts ...Option) *Calculator {
	logger := log.New(log.Config{Output: io.Discard})
	c := NewCalculator(schedules.Default(), logger, opts...)
	var n atomic.Int64
	c.newID = func() string { return fmt.Sprintf("calc-%d", n.Add(1)) }
	c.now = func() time.Time { return time.Date(2018, 6, 1, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestCalculator_Compute(t *testing.T) {
	c := newTestCalculator()

	calc, err := c.Compute(context.Background(), 2018, core.FromPounds(43_500))
	require.NoError(t, err)

	assert.Equal(t, "calc-1", calc.ID)
	assert.Equal(t, "£6,518.69", calc.TotalTax.String())
	assert.Equal(t, "£36,981.31", calc.NetIncome.String())
	assert.Equal(t, time.Date(2018, 6, 1, 9, 0, 0, 0, time.UTC), calc.CreatedAt)
}

func TestCalculator_UnknownYear(t *testing.T) {
	c := newTestCalculator()

	_, err := c.Compute(context.Background(), 1999, core.FromPounds(10_000))
	assert.ErrorIs(t, err, schedules.ErrUnknownYear)
}

func TestCalculator_CachesResults(t *testing.T) {
	c := newTestCalculator(WithCache(8, time.Minute))
	ctx := context.Background()

	first, err := c.Compute(ctx, 2018, core.FromPounds(43_500))
	require.NoError(t, err)
	second, err := c.Compute(ctx, 2018, core.FromPounds(43_500))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "every result gets its own id")
	assert.Equal(t, first.TotalTax, second.TotalTax)

	stats := c.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)

	// Mutating a returned breakdown must not reach the cached copy.
	second.Breakdown[0] = tax.Allocation{}
	third, err := c.Compute(ctx, 2018, core.FromPounds(43_500))
	require.NoError(t, err)
	assert.Equal(t, "Starter rate", third.Breakdown[0].Band.Name())
}

func TestCalculator_ConcurrentCompute(t *testing.T) {
	c := newTestCalculator(WithCache(8, time.Minute))

	var wg sync.WaitGroup
	results := make([]tax.Calculation, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			calc, err := c.Compute(context.Background(), 2017, core.FromPounds(60_000))
			assert.NoError(t, err)
			results[i] = calc
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0].TotalTax, r.TotalTax)
	}
	assert.Equal(t, 1, c.CacheStats().Size)
}

func TestCalculator_CalculateRecords(t *testing.T) {
	history := &fakeHistory{}
	c := newTestCalculator(WithHistory(history))

	calc, err := c.Calculate(context.Background(), 2018, core.FromPounds(20_000))
	require.NoError(t, err)

	require.Len(t, history.saved, 1)
	assert.Equal(t, calc.ID, history.saved[0].ID)
}

func TestCalculator_CalculateIgnoresRecordFailure(t *testing.T) {
	history := &fakeHistory{err: errors.New("disk full")}
	c := newTestCalculator(WithHistory(history))

	calc, err := c.Calculate(context.Background(), 2018, core.FromPounds(20_000))
	require.NoError(t, err)
	assert.False(t, calc.TotalTax.IsZero())
}

func TestCalculator_Record(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		_, err := newTestCalculator().Record(context.Background(), 2018, core.FromPounds(1))
		assert.ErrorIs(t, err, ErrHistoryUnavailable)
	})

	t.Run("storage error is returned", func(t *testing.T) {
		storeErr := errors.New("database is locked")
		c := newTestCalculator(WithHistory(&fakeHistory{err: storeErr}))
		_, err := c.Record(context.Background(), 2018, core.FromPounds(1))
		assert.ErrorIs(t, err, storeErr)
	})

	t.Run("unknown year", func(t *testing.T) {
		c := newTestCalculator(WithHistory(&fakeHistory{}))
		_, err := c.Record(context.Background(), 2030, core.FromPounds(1))
		assert.ErrorIs(t, err, schedules.ErrUnknownYear)
	})
}

func TestCalculator_RecordAs(t *testing.T) {
	history := &fakeHistory{}
	c := newTestCalculator(WithHistory(history))

	calc, err := c.RecordAs(context.Background(), "req-42", 2018, core.FromPounds(43_500))
	require.NoError(t, err)
	assert.Equal(t, "req-42", calc.ID)
	require.Len(t, history.saved, 1)
	assert.Equal(t, "req-42", history.saved[0].ID)

	_, err = c.RecordAs(context.Background(), "", 2018, core.FromPounds(1))
	assert.Error(t, err)
	assert.Len(t, history.saved, 1)
}

func TestCalculator_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("no queue", func(t *testing.T) {
		_, err := newTestCalculator().Enqueue(ctx, 2018, core.FromPounds(1))
		assert.ErrorIs(t, err, ErrQueueUnavailable)
	})

	t.Run("publishes request", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newTestCalculator(WithPublisher(pub))

		id, err := c.Enqueue(ctx, 2018, core.FromPounds(43_500))
		require.NoError(t, err)
		require.Len(t, pub.msgs, 1)
		assert.Equal(t, id, pub.msgs[0].RequestID)
		assert.Equal(t, 2018, pub.msgs[0].Year)
		assert.Equal(t, core.FromPounds(43_500), pub.msgs[0].Gross)
	})

	t.Run("unknown year is not queued", func(t *testing.T) {
		pub := &fakePublisher{}
		c := newTestCalculator(WithPublisher(pub))

		_, err := c.Enqueue(ctx, 1990, core.FromPounds(1))
		assert.ErrorIs(t, err, schedules.ErrUnknownYear)
		assert.Empty(t, pub.msgs)
	})

	t.Run("publish failure", func(t *testing.T) {
		c := newTestCalculator(WithPublisher(&fakePublisher{err: amqp.ErrCircuitOpen}))
		_, err := c.Enqueue(ctx, 2018, core.FromPounds(1))
		assert.ErrorIs(t, err, amqp.ErrCircuitOpen)
	})
}

func TestCalculator_History(t *testing.T) {
	ctx := context.Background()

	_, err := newTestCalculator().History(ctx, 5)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)

	history := &fakeHistory{}
	c := newTestCalculator(WithHistory(history))
	for _, gross := range []uint32{10_000, 20_000, 30_000} {
		_, err := c.Calculate(ctx, 2018, core.FromPounds(gross))
		require.NoError(t, err)
	}

	got, err := c.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.FromPounds(30_000), got[0].Gross)

	got, err = c.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCalculator_Years(t *testing.T) {
	assert.Equal(t, []int{2015, 2016, 2017, 2018}, newTestCalculator().Years())
	assert.Nil(t, newTestCalculator().ResultCache())
	assert.NotNil(t, newTestCalculator(WithCache(1, time.Second)).ResultCache())
}
