package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 可注入故障的操作名
const (
	OpFindCustomer         = "FindCustomer"
	OpCreateCustomer       = "CreateCustomer"
	OpUpdateCustomerFields = "UpdateCustomerFields"
	OpApplyBalanceDelta    = "ApplyBalanceDelta"
	OpSoftDelete           = "SoftDelete"
	OpRestore              = "Restore"
	OpListCustomers        = "ListAllSortedByBalance"
	OpInsertCreditEntry    = "InsertCreditEntry"
	OpListCreditEntries    = "ListCreditEntriesForCustomer"
	OpAppendOutbox         = "AppendOutbox"
)

// Store 内存版 LedgerStore，供测试使用
//
// 所有操作由一把互斥锁串行化；Transaction 持锁执行 fn，fn 返回错误时恢复到执行前的快照。
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error
	now    func() time.Time
}

type state struct {
	customers map[uuid.UUID]*model.Customer
	entries   []*model.CreditEntry
	outbox    []*model.OutboxMessage
	outboxSeq int64
}

func NewStore() *Store {
	return &Store{
		state: &state{
			customers: make(map[uuid.UUID]*model.Customer),
		},
		faults: make(map[string]error),
		now:    time.Now,
	}
}

// SetFault 让 op 之后的每次调用都返回 err，传 nil 清除
func (s *Store) SetFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// SetClock 替换时间源
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OutboxMessages 返回已写入的消息副本
func (s *Store) OutboxMessages() []model.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxMessage, 0, len(s.state.outbox))
	for _, m := range s.state.outbox {
		out = append(out, *m)
	}
	return out
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).Transaction(ctx, fn)
}

func (s *Store) FindCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).FindCustomer(ctx, id)
}

func (s *Store) CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).CreateCustomer(ctx, customer)
}

func (s *Store) UpdateCustomerFields(ctx context.Context, id uuid.UUID, fields model.CustomerFields) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).UpdateCustomerFields(ctx, id, fields)
}

func (s *Store) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).ApplyBalanceDelta(ctx, id, delta)
}

func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).SoftDelete(ctx, id)
}

func (s *Store) Restore(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).Restore(ctx, id)
}

func (s *Store) ListAllSortedByBalance(ctx context.Context) ([]*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).ListAllSortedByBalance(ctx)
}

func (s *Store) InsertCreditEntry(ctx context.Context, entry *model.CreditEntry) (*model.CreditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).InsertCreditEntry(ctx, entry)
}

func (s *Store) ListCreditEntriesForCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.CreditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).ListCreditEntriesForCustomer(ctx, customerID)
}

func (s *Store) AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{s: s}).AppendOutbox(ctx, msg)
}

// txStore 在已持有 Store.mu 的前提下直接操作 state
type txStore struct {
	s *Store
}

func (t *txStore) fault(op string) error {
	return t.s.faults[op]
}

func (t *txStore) Transaction(ctx context.Context, fn func(tx repository.LedgerStore) error) error {
	snapshot := t.s.state.clone()
	if err := fn(t); err != nil {
		t.s.state = snapshot
		return err
	}
	return nil
}

func (t *txStore) FindCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	if err := t.fault(OpFindCustomer); err != nil {
		return nil, err
	}
	c, ok := t.s.state.customers[id]
	if !ok || c.IsDeleted {
		return nil, repository.ErrCustomerNotFound
	}
	return copyCustomer(c), nil
}

func (t *txStore) CreateCustomer(ctx context.Context, customer *model.Customer) (*model.Customer, error) {
	if err := t.fault(OpCreateCustomer); err != nil {
		return nil, err
	}
	if t.emailTaken(customer.Email, uuid.Nil) {
		return nil, repository.ErrDuplicateEmail
	}
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	if _, exists := t.s.state.customers[customer.ID]; exists {
		return nil, repository.ErrInsertFailed
	}

	now := t.s.now()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	t.s.state.customers[customer.ID] = copyCustomer(customer)
	return copyCustomer(customer), nil
}

func (t *txStore) UpdateCustomerFields(ctx context.Context, id uuid.UUID, fields model.CustomerFields) (*model.Customer, error) {
	if err := t.fault(OpUpdateCustomerFields); err != nil {
		return nil, err
	}
	c, ok := t.s.state.customers[id]
	if !ok || c.IsDeleted {
		return nil, repository.ErrCustomerNotFound
	}
	if fields.Email != nil && t.emailTaken(*fields.Email, id) {
		return nil, repository.ErrDuplicateEmail
	}

	fields.Apply(c)
	c.UpdatedAt = t.s.now()
	return copyCustomer(c), nil
}

func (t *txStore) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*model.Customer, error) {
	if err := t.fault(OpApplyBalanceDelta); err != nil {
		return nil, err
	}
	c, ok := t.s.state.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	c.AvailableCredit = c.AvailableCredit.Add(delta)
	c.UpdatedAt = t.s.now()
	return copyCustomer(c), nil
}

func (t *txStore) SoftDelete(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	if err := t.fault(OpSoftDelete); err != nil {
		return nil, err
	}
	c, ok := t.s.state.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	c.IsDeleted = true
	c.UpdatedAt = t.s.now()
	return copyCustomer(c), nil
}

func (t *txStore) Restore(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	if err := t.fault(OpRestore); err != nil {
		return nil, err
	}
	c, ok := t.s.state.customers[id]
	if !ok || !c.IsDeleted {
		return nil, repository.ErrCustomerNotFound
	}
	c.IsDeleted = false
	c.UpdatedAt = t.s.now()
	return copyCustomer(c), nil
}

func (t *txStore) ListAllSortedByBalance(ctx context.Context) ([]*model.Customer, error) {
	if err := t.fault(OpListCustomers); err != nil {
		return nil, err
	}
	customers := make([]*model.Customer, 0, len(t.s.state.customers))
	for _, c := range t.s.state.customers {
		if !c.IsDeleted {
			customers = append(customers, copyCustomer(c))
		}
	}
	sort.Slice(customers, func(i, j int) bool {
		if cmp := customers[i].AvailableCredit.Cmp(customers[j].AvailableCredit); cmp != 0 {
			return cmp > 0
		}
		return strings.Compare(customers[i].ID.String(), customers[j].ID.String()) < 0
	})
	return customers, nil
}

func (t *txStore) InsertCreditEntry(ctx context.Context, entry *model.CreditEntry) (*model.CreditEntry, error) {
	if err := t.fault(OpInsertCreditEntry); err != nil {
		return nil, err
	}
	if _, ok := t.s.state.customers[entry.CustomerID]; !ok {
		return nil, repository.ErrInsertFailed
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.s.now()
	}
	stored := *entry
	stored.Customer = nil
	t.s.state.entries = append(t.s.state.entries, &stored)
	return entry, nil
}

// ListCreditEntriesForCustomer 按 created_at 倒序，时间相同时后写入的在前
func (t *txStore) ListCreditEntriesForCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.CreditEntry, error) {
	if err := t.fault(OpListCreditEntries); err != nil {
		return nil, err
	}
	entries := make([]*model.CreditEntry, 0)
	for i := len(t.s.state.entries) - 1; i >= 0; i-- {
		if e := t.s.state.entries[i]; e.CustomerID == customerID {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (t *txStore) AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	if err := t.fault(OpAppendOutbox); err != nil {
		return err
	}
	t.s.state.outboxSeq++
	msg.ID = t.s.state.outboxSeq
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	msg.CreatedAt = t.s.now()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	t.s.state.outbox = append(t.s.state.outbox, &cp)
	return nil
}

// emailTaken 唯一性覆盖所有客户，包括已删除的
func (t *txStore) emailTaken(email string, except uuid.UUID) bool {
	for id, c := range t.s.state.customers {
		if id != except && c.Email == email {
			return true
		}
	}
	return false
}

func (st *state) clone() *state {
	cp := &state{
		customers: make(map[uuid.UUID]*model.Customer, len(st.customers)),
		entries:   make([]*model.CreditEntry, len(st.entries)),
		outbox:    make([]*model.OutboxMessage, len(st.outbox)),
		outboxSeq: st.outboxSeq,
	}
	for id, c := range st.customers {
		cp.customers[id] = copyCustomer(c)
	}
	// 流水和消息只追加不修改，共享指针即可
	copy(cp.entries, st.entries)
	copy(cp.outbox, st.outbox)
	return cp
}

func copyCustomer(c *model.Customer) *model.Customer {
	cp := *c
	return &cp
}

var (
	_ repository.LedgerStore = (*Store)(nil)
	_ repository.LedgerStore = (*txStore)(nil)
)
