package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/repository/memory"
	"creditledger/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyCreditValidation(t *testing.T) {
	_, customers, credits := newServices(t)
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	id := c.ID.String()

	tests := []struct {
		name       string
		customerID string
		amount     decimal.Decimal
		creditType string
		wantKind   apperr.Kind
		wantMsg    string
	}{
		{"malformed id", "not-a-uuid", dec("10"), "deposit", apperr.KindInvalidArgument, "invalid customer ID format"},
		{"uuid without hyphens", "550e8400e29b41d4a716446655440000", dec("10"), "deposit", apperr.KindInvalidArgument, "invalid customer ID format"},
		{"zero amount", id, decimal.Zero, "deposit", apperr.KindInvalidArgument, "invalid credit amount"},
		{"too many decimals", id, dec("1.005"), "deposit", apperr.KindInvalidArgument, "credit amount supports at most 2 decimal places"},
		{"unknown type", id, dec("10"), "gift", apperr.KindInvalidArgument, "invalid credit type"},
		{"negative deposit", id, dec("-50"), "deposit", apperr.KindInvalidArgument, "deposit amount must be positive"},
		{"positive purchase", id, dec("50"), "purchase", apperr.KindInvalidArgument, "purchase amount must be negative"},
		{"unknown customer", uuid.NewString(), dec("10"), "deposit", apperr.KindNotFound, "customer not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credits.ApplyCredit(context.Background(), tt.customerID, tt.amount, tt.creditType)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, apperr.Message(err))
		})
	}

	// 校验失败不改动任何状态
	got, err := customers.GetCustomer(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, got.AvailableCredit.IsZero())
	history, err := credits.ListCreditHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyCreditRejectsExtremeExponent(t *testing.T) {
	_, customers, credits := newServices(t)
	c := mustCreate(t, customers, "John Doe", "john@example.com")

	for _, raw := range []string{"1e-20000000", "1e20000000", "5e-19", "1e19"} {
		start := time.Now()
		_, err := credits.ApplyCredit(context.Background(), c.ID.String(), dec(raw), "deposit")
		elapsed := time.Since(start)

		require.Error(t, err, raw)
		assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err), raw)
		assert.Equal(t, "invalid credit amount", apperr.Message(err), raw)
		assert.Less(t, elapsed, 100*time.Millisecond, raw)
	}

	// 指数在范围内但小数位过多，仍按精度校验
	_, err := credits.ApplyCredit(context.Background(), c.ID.String(), dec("1e-18"), "deposit")
	assert.Equal(t, "credit amount supports at most 2 decimal places", apperr.Message(err))

	got, err := customers.GetCustomer(context.Background(), c.ID.String())
	require.NoError(t, err)
	assert.True(t, got.AvailableCredit.IsZero())
}

func TestApplyCreditNormalizesSign(t *testing.T) {
	_, customers, credits := newServices(t)
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()

	tests := []struct {
		creditType string
		amount     string
		want       string
	}{
		{"deposit", "50", "50"},
		{"purchase", "-20", "-20"},
		{"refund", "-5", "5"},
		{"refund", "7.25", "7.25"},
	}
	for _, tt := range tests {
		entry, err := credits.ApplyCredit(ctx, c.ID.String(), dec(tt.amount), tt.creditType)
		require.NoError(t, err, "%s %s", tt.creditType, tt.amount)
		assert.True(t, dec(tt.want).Equal(entry.Amount), "%s %s stored as %s", tt.creditType, tt.amount, entry.Amount)
		assert.Equal(t, model.CreditType(tt.creditType), entry.Type)
		assert.Equal(t, c.ID, entry.CustomerID)
		assert.NotEqual(t, uuid.Nil, entry.ID)
	}

	got, err := customers.GetCustomer(ctx, c.ID.String())
	require.NoError(t, err)
	assert.True(t, dec("42.25").Equal(got.AvailableCredit), "balance %s", got.AvailableCredit)
}

func TestApplyCreditExampleScenario(t *testing.T) {
	_, customers, credits := newServices(t)
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()
	id := c.ID.String()

	first, err := credits.ApplyCredit(ctx, id, dec("100"), "deposit")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(first.Amount))

	got, err := customers.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(got.AvailableCredit))

	second, err := credits.ApplyCredit(ctx, id, dec("-30"), "purchase")
	require.NoError(t, err)
	assert.True(t, dec("-30").Equal(second.Amount))

	got, err = customers.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.True(t, dec("70").Equal(got.AvailableCredit))

	history, err := credits.ListCreditHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, model.CreditTypePurchase, history[0].Type)
	assert.Equal(t, first.ID, history[1].ID)
	assert.Equal(t, model.CreditTypeDeposit, history[1].Type)
	assert.False(t, history[0].CreatedAt.Before(history[1].CreatedAt))
}

func TestApplyCreditBalanceMatchesEntrySum(t *testing.T) {
	_, customers, credits := newServices(t)
	c := mustCreate(t, customers, "Jane Doe", "jane@example.com")
	ctx := context.Background()
	id := c.ID.String()

	ops := []struct {
		amount string
		typ    string
	}{
		{"200", "deposit"}, {"-100", "purchase"}, {"12.50", "refund"}, {"-0.75", "purchase"}, {"3", "deposit"},
	}
	for _, op := range ops {
		_, err := credits.ApplyCredit(ctx, id, dec(op.amount), op.typ)
		require.NoError(t, err)
	}

	history, err := credits.ListCreditHistory(ctx, id)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range history {
		sum = sum.Add(e.Amount)
	}

	got, err := customers.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.True(t, sum.Equal(got.AvailableCredit), "sum %s != balance %s", sum, got.AvailableCredit)
	assert.True(t, dec("114.75").Equal(got.AvailableCredit))
}

func TestApplyCreditIsAtomic(t *testing.T) {
	store, customers, credits := newServices(t, WithCreditAppliedTopic("ledger.credit-applied"))
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()
	id := c.ID.String()

	store.SetFault(memory.OpInsertCreditEntry, errors.New("connection reset by peer"))
	_, err := credits.ApplyCredit(ctx, id, dec("100"), "deposit")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, "an unexpected error occurred", apperr.Message(err))

	got, err := customers.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.AvailableCredit.IsZero(), "balance must not reflect the failed credit")
	history, err := credits.ListCreditHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, store.OutboxMessages())

	// outbox 写入失败同样整体回滚
	store.SetFault(memory.OpInsertCreditEntry, nil)
	store.SetFault(memory.OpAppendOutbox, errors.New("outbox table locked"))
	_, err = credits.ApplyCredit(ctx, id, dec("100"), "deposit")
	require.Error(t, err)
	got, err = customers.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.AvailableCredit.IsZero())
}

func TestApplyCreditConcurrent(t *testing.T) {
	_, customers, credits := newServices(t)
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()
	id := c.ID.String()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := credits.ApplyCredit(ctx, id, dec("2.5"), "deposit")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := customers.GetCustomer(ctx, id)
	require.NoError(t, err)
	assert.True(t, dec("125").Equal(got.AvailableCredit), "balance %s", got.AvailableCredit)

	history, err := credits.ListCreditHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, n)
}

func TestApplyCreditDeletedCustomerIsNotFound(t *testing.T) {
	_, customers, credits := newServices(t)
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()
	require.NoError(t, customers.DeleteCustomer(ctx, c.ID.String()))

	_, err := credits.ApplyCredit(ctx, c.ID.String(), dec("10"), "deposit")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestApplyCreditWritesOutboxMessage(t *testing.T) {
	store, customers, credits := newServices(t, WithCreditAppliedTopic("ledger.credit-applied"))
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()

	_, err := credits.ApplyCredit(ctx, c.ID.String(), dec("100"), "deposit")
	require.NoError(t, err)
	entry, err := credits.ApplyCredit(ctx, c.ID.String(), dec("-30"), "purchase")
	require.NoError(t, err)

	msgs := store.OutboxMessages()
	require.Len(t, msgs, 2)
	last := msgs[1]
	assert.Equal(t, "ledger.credit-applied", last.Topic)
	assert.Equal(t, c.ID.String(), last.MessageKey)
	assert.Equal(t, model.OutboxStatusPending, last.Status)

	var event model.CreditAppliedEvent
	require.NoError(t, json.Unmarshal([]byte(last.Payload), &event))
	assert.Equal(t, entry.ID.String(), event.CreditID)
	assert.Equal(t, "-30.00", event.Amount)
	assert.Equal(t, "purchase", event.Type)
	assert.Equal(t, "70.00", event.BalanceAfter)
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []uuid.UUID
	released int
	err      error
}

func (l *fakeLocker) Lock(_ context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, id)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func TestApplyCreditUsesLocker(t *testing.T) {
	locker := &fakeLocker{}
	_, customers, credits := newServices(t, WithLocker(locker))
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()

	_, err := credits.ApplyCredit(ctx, c.ID.String(), dec("1"), "deposit")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.ID}, locker.locked)
	assert.Equal(t, 1, locker.released)

	// 校验失败不加锁
	_, err = credits.ApplyCredit(ctx, c.ID.String(), dec("-1"), "deposit")
	require.Error(t, err)
	assert.Len(t, locker.locked, 1)

	locker.err = errors.New("redis unavailable")
	_, err = credits.ApplyCredit(ctx, c.ID.String(), dec("1"), "deposit")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestListCreditHistory(t *testing.T) {
	store, customers, credits := newServices(t)
	c := mustCreate(t, customers, "John Doe", "john@example.com")
	ctx := context.Background()

	_, err := credits.ListCreditHistory(ctx, "123")
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	for _, amt := range []string{"1", "2", "3"} {
		_, err := credits.ApplyCredit(ctx, c.ID.String(), dec(amt), "deposit")
		require.NoError(t, err)
	}
	first, err := credits.ListCreditHistory(ctx, c.ID.String())
	require.NoError(t, err)
	second, err := credits.ListCreditHistory(ctx, c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].CreatedAt.After(first[i-1].CreatedAt))
	}

	store.SetFault(memory.OpListCreditEntries, errors.New("timeout"))
	_, err = credits.ListCreditHistory(ctx, c.ID.String())
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
