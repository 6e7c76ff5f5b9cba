package service

import (
	"context"
	"testing"

	"creditledger/internal/model"
	"creditledger/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func fields(name, email string) model.CustomerFields {
	return model.CustomerFields{Name: strPtr(name), Email: strPtr(email)}
}

func newServices(t *testing.T, opts ...CreditOption) (*memory.Store, *CustomerService, *CreditService) {
	t.Helper()
	store := memory.NewStore()
	return store, NewCustomerService(store), NewCreditService(store, opts...)
}

func mustCreate(t *testing.T, svc *CustomerService, name, email string) *model.Customer {
	t.Helper()
	c, err := svc.CreateCustomer(context.Background(), fields(name, email))
	require.NoError(t, err)
	return c
}
