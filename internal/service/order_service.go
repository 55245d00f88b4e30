package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"storefront/internal/database"
	"storefront/internal/entity"
	"storefront/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Strategy selects how PlaceOrder guards the stock decrement.
type Strategy string

const (
	// StrategyConditional decrements with a single guarded UPDATE.
	StrategyConditional Strategy = "conditional"
	// StrategyLocked reads the stock under SELECT ... FOR UPDATE first.
	StrategyLocked Strategy = "locked"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyConditional, StrategyLocked:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown order strategy %q", s)
}

// OrderStore runs a unit of work on one borrowed session.
type OrderStore interface {
	WithinTx(ctx context.Context, fn func(tx repository.OrderTx) error) error
	GetOrders(ctx context.Context) ([]entity.OrderDetail, error)
	GetOrderByID(ctx context.Context, id int64) (*entity.OrderDetail, error)
}

// EventWriter is satisfied by *kafka.Writer.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OrderService is a service that provides order-related operations
type OrderService struct {
	store    OrderStore
	strategy Strategy
	timeout  time.Duration
	events   EventWriter
	cache    ProductCache
}

type OrderOption func(*OrderService)

// WithEvents publishes an order-created event after every commit.
func WithEvents(w EventWriter) OrderOption {
	return func(s *OrderService) { s.events = w }
}

// WithCacheEviction drops the ordered product from the cache after commit.
func WithCacheEviction(c ProductCache) OrderOption {
	return func(s *OrderService) { s.cache = c }
}

// WithTimeout bounds a whole placement, lock waits included.
func WithTimeout(d time.Duration) OrderOption {
	return func(s *OrderService) { s.timeout = d }
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(store OrderStore, strategy Strategy, opts ...OrderOption) *OrderService {
	s := &OrderService{store: store, strategy: strategy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder atomically checks stock, decrements it and records the order.
// Rejections are entity.ErrStockUnavailable (conditional strategy) or
// entity.ErrNotFound / entity.ErrInsufficientStock (locked strategy); any
// other failure is an *entity.InfrastructureError. Nothing is retried.
func (s *OrderService) PlaceOrder(ctx context.Context, productID int64, quantity int) (*entity.Order, error) {
	if productID <= 0 {
		return nil, &entity.ValidationError{Field: "product_id", Reason: "must be a positive integer"}
	}
	if quantity <= 0 {
		return nil, &entity.ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	order := &entity.Order{ProductID: productID, Quantity: quantity}
	err := s.store.WithinTx(ctx, func(tx repository.OrderTx) error {
		if s.strategy == StrategyConditional {
			return placeConditional(ctx, tx, order)
		}
		return placeLocked(ctx, tx, order)
	})
	if err != nil {
		err = classify(err)
		if entity.OutcomeOf(err) == entity.OutcomeRejected {
			logger.Warn().Err(err).Msgf("Order for product %d rejected", productID)
		} else {
			logger.Error().Err(err).Msgf("Error placing order for product %d", productID)
		}
		return nil, err
	}

	logger.Info().Msgf("Order %d placed for product %d", order.ID, productID)
	s.afterCommit(ctx, order)
	return order, nil
}

func placeConditional(ctx context.Context, tx repository.OrderTx, order *entity.Order) error {
	ok, err := tx.DecrementStockIfAvailable(ctx, order.ProductID, order.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		return entity.ErrStockUnavailable
	}
	return tx.InsertOrder(ctx, order)
}

func placeLocked(ctx context.Context, tx repository.OrderTx, order *entity.Order) error {
	stock, err := tx.LockProductStock(ctx, order.ProductID)
	if err != nil {
		return err
	}
	if stock < order.Quantity {
		return entity.ErrInsufficientStock
	}
	if err := tx.DecrementStock(ctx, order.ProductID, order.Quantity); err != nil {
		return err
	}
	return tx.InsertOrder(ctx, order)
}

// classify keeps rejections as they are and turns everything else into an
// InfrastructureError. A failed rollback is always an infrastructure error,
// with the original cause still in its message.
func classify(err error) error {
	if errors.Is(err, database.ErrRollback) {
		return &entity.InfrastructureError{Op: "place order: rollback", Err: err}
	}
	switch entity.OutcomeOf(err) {
	case entity.OutcomeRejected, entity.OutcomeInvalid:
		return err
	}
	return entity.Infra("place order", err)
}

// afterCommit runs side effects that must not fail a committed order.
func (s *OrderService) afterCommit(ctx context.Context, order *entity.Order) {
	ctx = context.WithoutCancel(ctx)

	if s.cache != nil {
		if err := s.cache.Delete(ctx, order.ProductID); err != nil {
			logger.Error().Err(err).Msgf("Error evicting product %d from cache", order.ProductID)
		}
	}

	if s.events != nil {
		if err := s.publishOrderEvent(ctx, order, "created"); err != nil {
			logger.Error().Err(err).Msgf("Error publishing event for order %d", order.ID)
		}
	}
}

func (s *OrderService) publishOrderEvent(ctx context.Context, order *entity.Order, eventType string) error {
	event := entity.OrderEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		OrderID:   order.ID,
		ProductID: order.ProductID,
		Quantity:  order.Quantity,
		OrderDate: order.OrderDate,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// order-created-1
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%d", eventType, order.ID)),
		Value: payload,
	}

	return s.events.WriteMessages(ctx, msg)
}

// ListOrders lists orders newest first for the admin area.
func (s *OrderService) ListOrders(ctx context.Context) ([]entity.OrderDetail, error) {
	orders, err := s.store.GetOrders(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error listing orders")
		return nil, entity.Infra("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*entity.OrderDetail, error) {
	if id <= 0 {
		return nil, &entity.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}
		logger.Error().Err(err).Msgf("Error getting order by ID %d", id)
		return nil, entity.Infra("get order", err)
	}
	return order, nil
}
