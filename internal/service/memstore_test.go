package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/entity"
	"storefront/internal/repository"
)

// memStore is an in-memory transactional store. Every statement that touches
// a product row takes that row's lock and keeps it until the transaction
// ends, the way InnoDB does for UPDATE and SELECT ... FOR UPDATE.
type memStore struct {
	mu       sync.Mutex
	stock    map[int64]int
	orders   []entity.Order
	nextID   int64
	rowLocks map[int64]*sync.Mutex

	failInsert atomic.Bool
	inUse      atomic.Int64
	maxInUse   atomic.Int64
}

func newMemStore(stock map[int64]int) *memStore {
	return &memStore{stock: stock, rowLocks: map[int64]*sync.Mutex{}}
}

func (m *memStore) rowLock(id int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[id] = l
	}
	return l
}

func (m *memStore) Stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[id]
}

func (m *memStore) Orders() []entity.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Order(nil), m.orders...)
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx repository.OrderTx) error) error {
	n := m.inUse.Add(1)
	defer m.inUse.Add(-1)
	for {
		cur := m.maxInUse.Load()
		if n <= cur || m.maxInUse.CompareAndSwap(cur, n) {
			break
		}
	}

	tx := &memTx{s: m, held: map[int64]*sync.Mutex{}}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (m *memStore) GetOrders(ctx context.Context) ([]entity.OrderDetail, error) {
	var out []entity.OrderDetail
	for _, o := range m.Orders() {
		out = append(out, entity.OrderDetail{Order: o})
	}
	return out, nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*entity.OrderDetail, error) {
	for _, o := range m.Orders() {
		if o.ID == id {
			return &entity.OrderDetail{Order: o}, nil
		}
	}
	return nil, entity.ErrNotFound
}

type memTx struct {
	s       *memStore
	held    map[int64]*sync.Mutex
	undo    []func()
	pending []entity.Order
}

func (t *memTx) lock(id int64) {
	if _, ok := t.held[id]; ok {
		return
	}
	l := t.s.rowLock(id)
	l.Lock()
	t.held[id] = l
	// widen the window between lock and write
	runtime.Gosched()
}

func (t *memTx) releaseLocks() {
	for _, l := range t.held {
		l.Unlock()
	}
}

func (t *memTx) decrement(id int64, qty int) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	before := t.s.stock[id]
	t.s.stock[id] = before - qty
	t.undo = append(t.undo, func() { t.s.stock[id] = before })
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.orders = append(t.s.orders, t.pending...)
}

func (t *memTx) DecrementStockIfAvailable(ctx context.Context, productID int64, quantity int) (bool, error) {
	t.lock(productID)
	t.s.mu.Lock()
	stock, ok := t.s.stock[productID]
	t.s.mu.Unlock()
	if !ok || stock < quantity {
		return false, nil
	}
	t.decrement(productID, quantity)
	return true, nil
}

func (t *memTx) LockProductStock(ctx context.Context, productID int64) (int, error) {
	t.lock(productID)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	stock, ok := t.s.stock[productID]
	if !ok {
		return 0, entity.ErrNotFound
	}
	return stock, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	t.lock(productID)
	t.decrement(productID, quantity)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *entity.Order) error {
	if t.s.failInsert.Load() {
		return &entity.InfrastructureError{Op: "insert order", Err: errors.New("injected fault")}
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.stock[order.ProductID]; !ok {
		return entity.ErrNotFound
	}
	t.s.nextID++
	order.ID = t.s.nextID
	order.OrderDate = time.Now().UTC()
	t.pending = append(t.pending, *order)
	return nil
}

// fakeCache is a map-backed ProductCache.
type fakeCache struct {
	mu      sync.Mutex
	items   map[int64]entity.Product
	deleted []int64
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[int64]entity.Product{}}
}

func (c *fakeCache) Get(ctx context.Context, id int64) (*entity.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("redis: connection refused")
	}
	p, ok := c.items[id]
	if !ok {
		return nil, errors.New("miss")
	}
	return &p, nil
}

func (c *fakeCache) Set(ctx context.Context, product *entity.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[product.ID] = *product
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.deleted = append(c.deleted, id)
	return nil
}
