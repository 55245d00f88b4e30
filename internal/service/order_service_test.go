package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/database"
	"storefront/internal/entity"
	"storefront/internal/repository"
)

var strategies = []Strategy{StrategyConditional, StrategyLocked}

func TestPlaceOrderSucceeds(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			store := newMemStore(map[int64]int{1: 5})
			svc := NewOrderService(store, strategy)

			order, err := svc.PlaceOrder(context.Background(), 1, 1)
			require.NoError(t, err)
			assert.Equal(t, entity.OutcomeSuccess, entity.OutcomeOf(err))
			assert.Equal(t, 4, store.Stock(1))

			orders := store.Orders()
			require.Len(t, orders, 1)
			assert.Equal(t, int64(1), orders[0].ProductID)
			assert.Equal(t, 1, orders[0].Quantity)
			assert.Equal(t, orders[0].ID, order.ID)
			assert.False(t, order.OrderDate.IsZero())
		})
	}
}

func TestPlaceOrderOutOfStock(t *testing.T) {
	want := map[Strategy]error{
		StrategyConditional: entity.ErrStockUnavailable,
		StrategyLocked:      entity.ErrInsufficientStock,
	}
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			store := newMemStore(map[int64]int{1: 0})
			svc := NewOrderService(store, strategy)

			_, err := svc.PlaceOrder(context.Background(), 1, 1)
			assert.ErrorIs(t, err, want[strategy])
			assert.Equal(t, entity.OutcomeRejected, entity.OutcomeOf(err))
			assert.Equal(t, 0, store.Stock(1))
			assert.Empty(t, store.Orders())
		})
	}
}

func TestPlaceOrderUnknownProduct(t *testing.T) {
	want := map[Strategy]error{
		StrategyConditional: entity.ErrStockUnavailable,
		StrategyLocked:      entity.ErrNotFound,
	}
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			store := newMemStore(map[int64]int{1: 5})
			svc := NewOrderService(store, strategy)

			_, err := svc.PlaceOrder(context.Background(), 999, 1)
			assert.ErrorIs(t, err, want[strategy])
			assert.Equal(t, entity.OutcomeRejected, entity.OutcomeOf(err))
			assert.Empty(t, store.Orders())
			assert.Equal(t, 5, store.Stock(1))
		})
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	store := newMemStore(map[int64]int{1: 5})
	svc := NewOrderService(store, StrategyLocked)

	_, err := svc.PlaceOrder(context.Background(), 0, 1)
	assert.Equal(t, entity.OutcomeInvalid, entity.OutcomeOf(err))

	_, err = svc.PlaceOrder(context.Background(), 1, 0)
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)

	assert.Equal(t, int64(0), store.maxInUse.Load())
	assert.Equal(t, 5, store.Stock(1))
}

func TestPlaceOrderConcurrentOversell(t *testing.T) {
	const (
		calls = 50
		stock = 10
	)
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			store := newMemStore(map[int64]int{1: stock})
			svc := NewOrderService(store, strategy)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				outcomes = map[entity.Outcome]int{}
				start    = make(chan struct{})
			)
			for i := 0; i < calls; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := svc.PlaceOrder(context.Background(), 1, 1)
					mu.Lock()
					outcomes[entity.OutcomeOf(err)]++
					mu.Unlock()
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, stock, outcomes[entity.OutcomeSuccess])
			assert.Equal(t, calls-stock, outcomes[entity.OutcomeRejected])
			assert.Len(t, store.Orders(), stock)
			assert.Equal(t, 0, store.Stock(1))
			assert.Equal(t, int64(0), store.inUse.Load())
		})
	}
}

func TestPlaceOrderStockMatchesSuccesses(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			initial := map[int64]int{1: 7, 2: 3, 3: 0}
			store := newMemStore(map[int64]int{1: 7, 2: 3, 3: 0})
			svc := NewOrderService(store, strategy)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes = map[int64]int{}
			)
			for i := 0; i < 60; i++ {
				productID := int64(i%4 + 1) // product 4 does not exist
				quantity := i%3 + 1
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.PlaceOrder(context.Background(), productID, quantity)
					if err == nil {
						mu.Lock()
						successes[productID] += quantity
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			for id, s := range initial {
				final := store.Stock(id)
				assert.Equal(t, s-successes[id], final, "product %d", id)
				assert.GreaterOrEqual(t, final, 0, "product %d", id)
			}
			assert.Zero(t, successes[4])

			ordered := map[int64]int{}
			for _, o := range store.Orders() {
				ordered[o.ProductID] += o.Quantity
			}
			for id := range initial {
				assert.Equal(t, successes[id], ordered[id], "product %d", id)
			}
		})
	}
}

func TestPlaceOrderRollsBackWhenInsertFails(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			store := newMemStore(map[int64]int{1: 5})
			store.failInsert.Store(true)
			svc := NewOrderService(store, strategy)

			_, err := svc.PlaceOrder(context.Background(), 1, 1)
			assert.Equal(t, entity.OutcomeInfrastructureError, entity.OutcomeOf(err))
			assert.Equal(t, 5, store.Stock(1))
			assert.Empty(t, store.Orders())
			assert.Equal(t, int64(0), store.inUse.Load())
		})
	}
}

type stubStore struct {
	memStore
	withinTx func(ctx context.Context, fn func(tx repository.OrderTx) error) error
}

func (s *stubStore) WithinTx(ctx context.Context, fn func(tx repository.OrderTx) error) error {
	return s.withinTx(ctx, fn)
}

func TestPlaceOrderTimesOut(t *testing.T) {
	store := &stubStore{withinTx: func(ctx context.Context, fn func(tx repository.OrderTx) error) error {
		<-ctx.Done()
		return fmt.Errorf("acquire session: %w", ctx.Err())
	}}
	svc := NewOrderService(store, StrategyLocked, WithTimeout(20*time.Millisecond))

	_, err := svc.PlaceOrder(context.Background(), 1, 1)
	assert.Equal(t, entity.OutcomeInfrastructureError, entity.OutcomeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlaceOrderRollbackFailureKeepsCause(t *testing.T) {
	store := &stubStore{withinTx: func(ctx context.Context, fn func(tx repository.OrderTx) error) error {
		return errors.Join(entity.ErrInsufficientStock, fmt.Errorf("%w: bad connection", database.ErrRollback))
	}}
	svc := NewOrderService(store, StrategyLocked)

	_, err := svc.PlaceOrder(context.Background(), 1, 1)
	assert.Equal(t, entity.OutcomeInfrastructureError, entity.OutcomeOf(err))
	assert.Contains(t, err.Error(), "insufficient stock")
}

func TestPlaceOrderWrapsRawErrors(t *testing.T) {
	store := &stubStore{withinTx: func(ctx context.Context, fn func(tx repository.OrderTx) error) error {
		return errors.New("dial tcp 10.0.0.3:3306: connection refused")
	}}
	svc := NewOrderService(store, StrategyConditional)

	_, err := svc.PlaceOrder(context.Background(), 1, 1)
	var infra *entity.InfrastructureError
	require.ErrorAs(t, err, &infra)
	assert.Equal(t, "place order", infra.Op)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestPlaceOrderPublishesEventAndEvicts(t *testing.T) {
	store := newMemStore(map[int64]int{1: 2})
	writer := &fakeWriter{}
	cache := newFakeCache()
	svc := NewOrderService(store, StrategyLocked, WithEvents(writer), WithCacheEviction(cache))

	order, err := svc.PlaceOrder(context.Background(), 1, 1)
	require.NoError(t, err)

	require.Len(t, writer.msgs, 1)
	assert.Equal(t, fmt.Sprintf("order-created-%d", order.ID), string(writer.msgs[0].Key))
	var event entity.OrderEvent
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &event))
	assert.Equal(t, "created", event.Type)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, int64(1), event.ProductID)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, []int64{1}, cache.deleted)

	// rejected orders publish nothing
	store.stock[1] = 0
	_, err = svc.PlaceOrder(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Len(t, writer.msgs, 1)
}

func TestPlaceOrderIgnoresCachedStock(t *testing.T) {
	for _, strategy := range []Strategy{StrategyConditional, StrategyLocked} {
		t.Run(string(strategy), func(t *testing.T) {
			store := newMemStore(map[int64]int{1: 0, 2: 1})
			cache := newFakeCache()
			// snapshots written back by a lookup that raced an earlier order
			require.NoError(t, cache.Set(context.Background(), &entity.Product{ID: 1, Name: "Mug", Stock: 5}))
			require.NoError(t, cache.Set(context.Background(), &entity.Product{ID: 2, Name: "Cup", Stock: 0}))
			svc := NewOrderService(store, strategy, WithCacheEviction(cache))

			_, err := svc.PlaceOrder(context.Background(), 1, 1)
			assert.Equal(t, entity.OutcomeRejected, entity.OutcomeOf(err))
			assert.Equal(t, 0, store.Stock(1))

			_, err = svc.PlaceOrder(context.Background(), 2, 1)
			require.NoError(t, err)
			assert.Equal(t, 0, store.Stock(2))
			assert.Equal(t, []int64{2}, cache.deleted)
		})
	}
}

func TestPlaceOrderIgnoresPublishFailure(t *testing.T) {
	store := newMemStore(map[int64]int{1: 1})
	writer := &fakeWriter{err: errors.New("kafka: leader not available")}
	svc := NewOrderService(store, StrategyConditional, WithEvents(writer))

	_, err := svc.PlaceOrder(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Stock(1))
	assert.Len(t, store.Orders(), 1)
}

func TestGetOrder(t *testing.T) {
	store := newMemStore(map[int64]int{1: 3})
	svc := NewOrderService(store, StrategyLocked)
	order, err := svc.PlaceOrder(context.Background(), 1, 1)
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.GetOrder(context.Background(), order.ID+100)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = svc.GetOrder(context.Background(), -1)
	assert.ErrorIs(t, err, entity.ErrValidation)

	orders, err := svc.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("conditional")
	require.NoError(t, err)
	assert.Equal(t, StrategyConditional, s)

	_, err = ParseStrategy("optimistic")
	assert.Error(t, err)
}
