package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopmicro/orderflow/internal/order/domain"
)

type fakeRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	events    []recordedEvent
	createErr error
	eventErr  error
	// updateHook runs before a status transition, under the repo lock; it
	// can mutate stored state and force an error.
	updateHook func(orders map[string]domain.Order, id string, to domain.OrderStatus) error
}

type recordedEvent struct {
	OrderID   string
	Status    domain.OrderStatus
	EventType string
	Payload   []byte
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]domain.Order)}
}

func (f *fakeRepo) Create(_ context.Context, o domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.orders[o.ID] = o
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (f *fakeRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]domain.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id string, to domain.OrderStatus) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transition(id, to)
}

func (f *fakeRepo) UpdateStatusWithEvent(_ context.Context, id string, to domain.OrderStatus, eventType string, payload []byte, _ map[string]string, _ string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventErr != nil {
		return domain.Order{}, f.eventErr
	}
	o, err := f.transition(id, to)
	if err != nil {
		return domain.Order{}, err
	}
	f.events = append(f.events, recordedEvent{OrderID: id, Status: to, EventType: eventType, Payload: payload})
	return o, nil
}

func (f *fakeRepo) transition(id string, to domain.OrderStatus) (domain.Order, error) {
	if f.updateHook != nil {
		if err := f.updateHook(f.orders, id, to); err != nil {
			return domain.Order{}, err
		}
	}
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if !o.Status.CanTransitionTo(to) {
		return domain.Order{}, fmt.Errorf("order %s: %s -> %s: %w", id, o.Status, to, domain.ErrInvalidTransition)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	f.orders[id] = o
	return o, nil
}

func (f *fakeRepo) status(id string) domain.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

type fakeCart struct {
	snapshot domain.CartSnapshot
	fetchErr error
	clearErr error
	cleared  bool
}

func (f *fakeCart) FetchCart(context.Context, string) (domain.CartSnapshot, error) {
	if f.fetchErr != nil {
		return domain.CartSnapshot{}, f.fetchErr
	}
	return f.snapshot, nil
}

func (f *fakeCart) ClearCart(context.Context, string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	return nil
}

type adjustCall struct {
	ProductID string
	Delta     int
}

type fakeInventory struct {
	mu    sync.Mutex
	stock map[string]int
	calls []adjustCall
	// adjustErr, when set, can fail a specific adjustment by product and
	// delta sign.
	adjustErr func(productID string, delta int) error
}

func newFakeInventory(stock map[string]int) *fakeInventory {
	return &fakeInventory{stock: stock}
}

func (f *fakeInventory) CheckStock(_ context.Context, productID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.stock[productID]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return n, nil
}

func (f *fakeInventory) AdjustStock(_ context.Context, productID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adjustErr != nil {
		if err := f.adjustErr(productID, delta); err != nil {
			return err
		}
	}
	n, ok := f.stock[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if n+delta < 0 {
		return fmt.Errorf("product %s: %w", productID, domain.ErrInsufficientStock)
	}
	f.stock[productID] = n + delta
	f.calls = append(f.calls, adjustCall{ProductID: productID, Delta: delta})
	return nil
}

func (f *fakeInventory) level(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[productID]
}

func (f *fakeInventory) adjustments() []adjustCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adjustCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakePayments struct {
	session     PaymentSession
	createErr   error
	refundErr   error
	refundCalls []string
}

func (f *fakePayments) CreateSession(_ context.Context, orderID string, _ int64) (PaymentSession, error) {
	if f.createErr != nil {
		return PaymentSession{}, f.createErr
	}
	return f.session, nil
}

func (f *fakePayments) Refund(_ context.Context, orderID string, _ int64) error {
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refundCalls = append(f.refundCalls, orderID)
	return nil
}

type fakeCompLog struct {
	mu      sync.Mutex
	nextID  int64
	entries []Compensation
	done    []int64
	failed  map[int64]string
}

func newFakeCompLog() *fakeCompLog {
	return &fakeCompLog{failed: make(map[int64]string)}
}

func (f *fakeCompLog) Add(_ context.Context, c Compensation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	c.CreatedAt = time.Now().UTC()
	f.entries = append(f.entries, c)
	return nil
}

func (f *fakeCompLog) LockBatch(_ context.Context, limit int, _ time.Duration) ([]Compensation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Compensation
	for _, c := range f.entries {
		if len(out) == limit {
			break
		}
		if f.isDone(c.ID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCompLog) MarkDone(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, id)
	return nil
}

func (f *fakeCompLog) MarkFailed(_ context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

func (f *fakeCompLog) isDone(id int64) bool {
	for _, d := range f.done {
		if d == id {
			return true
		}
	}
	return false
}

func (f *fakeCompLog) pending() []Compensation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Compensation
	for _, c := range f.entries {
		if !f.isDone(c.ID) {
			out = append(out, c)
		}
	}
	return out
}

type fakeKeys struct {
	mu     sync.Mutex
	claims map[string]string
}

func newFakeKeys() *fakeKeys { return &fakeKeys{claims: make(map[string]string)} }

func (f *fakeKeys) Reserve(_ context.Context, key, orderID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.claims[key]; ok {
		return existing, false, nil
	}
	f.claims[key] = orderID
	return orderID, true, nil
}
