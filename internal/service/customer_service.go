package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"creditledger/internal/model"
	"creditledger/internal/repository"
	"creditledger/pkg/apperr"

	"github.com/shopspring/decimal"
)

// CustomerService 客户生命周期管理
//
// 状态机：Active -> Deleted -> Active ...，没有终态，也没有物理删除。
type CustomerService struct {
	store repository.LedgerStore
}

func NewCustomerService(store repository.LedgerStore) *CustomerService {
	return &CustomerService{store: store}
}

func (s *CustomerService) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	customerID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	customer, err := s.store.FindCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, apperr.NotFound("customer not found")
		}
		log.Printf("[CustomerService] 查询客户失败: id=%s, err=%v", customerID, err)
		return nil, apperr.Internal(err)
	}
	return customer, nil
}

// CreateCustomer 新客户余额从 0 开始，只接受 CustomerFields 中的字段
func (s *CustomerService) CreateCustomer(ctx context.Context, fields model.CustomerFields) (*model.Customer, error) {
	if fields.Name == nil || strings.TrimSpace(*fields.Name) == "" ||
		fields.Email == nil || strings.TrimSpace(*fields.Email) == "" {
		return nil, apperr.InvalidArgument("name and email are required")
	}
	if !validEmail(*fields.Email) {
		return nil, apperr.InvalidArgument("invalid email format")
	}

	customer := &model.Customer{AvailableCredit: decimal.Zero}
	fields.Apply(customer)

	created, err := s.store.CreateCustomer(ctx, customer)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.InvalidArgumentWrap("email already in use", err)
		}
		log.Printf("[CustomerService] 创建客户失败: email=%s, err=%v", *fields.Email, err)
		return nil, apperr.Internal(err)
	}

	log.Printf("客户创建成功: id=%s", created.ID)
	return created, nil
}

// UpdateCustomer 更新客户资料
// 目标不存在或已删除时不报错，返回 (nil, false, nil) 表示本次未做任何修改。
func (s *CustomerService) UpdateCustomer(ctx context.Context, id string, fields model.CustomerFields) (*model.Customer, bool, error) {
	customerID, err := parseID(id)
	if err != nil {
		return nil, false, err
	}

	if fields.Name != nil && strings.TrimSpace(*fields.Name) == "" {
		return nil, false, apperr.InvalidArgument("name cannot be empty")
	}
	if fields.Email != nil && !validEmail(*fields.Email) {
		return nil, false, apperr.InvalidArgument("invalid email format")
	}

	if _, err := s.store.FindCustomer(ctx, customerID); err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, false, nil
		}
		log.Printf("[CustomerService] 查询客户失败: id=%s, err=%v", customerID, err)
		return nil, false, apperr.Internal(err)
	}

	updated, err := s.store.UpdateCustomerFields(ctx, customerID, fields)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, false, apperr.InvalidArgumentWrap("email already in use", err)
		case errors.Is(err, repository.ErrCustomerNotFound):
			// 查询之后被并发删除
			return nil, false, nil
		}
		log.Printf("[CustomerService] 更新客户失败: id=%s, err=%v", customerID, err)
		return nil, false, apperr.Internal(err)
	}
	return updated, true, nil
}

// DeleteCustomer 软删除；存储层不检查当前标记，对已删除客户再次删除同样成功
func (s *CustomerService) DeleteCustomer(ctx context.Context, id string) error {
	customerID, err := parseID(id)
	if err != nil {
		return err
	}

	if _, err := s.store.SoftDelete(ctx, customerID); err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return apperr.NotFound("customer not found")
		}
		log.Printf("[CustomerService] 删除客户失败: id=%s, err=%v", customerID, err)
		return apperr.Internal(err)
	}

	log.Printf("客户已删除: id=%s", customerID)
	return nil
}

// RestoreCustomer 只允许恢复已删除的客户
func (s *CustomerService) RestoreCustomer(ctx context.Context, id string) (*model.Customer, error) {
	customerID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	customer, err := s.store.Restore(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, apperr.NotFound("customer not found or already active")
		}
		log.Printf("[CustomerService] 恢复客户失败: id=%s, err=%v", customerID, err)
		return nil, apperr.Internal(err)
	}

	log.Printf("客户已恢复: id=%s", customerID)
	return customer, nil
}

func (s *CustomerService) ListSortedByBalance(ctx context.Context) ([]*model.Customer, error) {
	customers, err := s.store.ListAllSortedByBalance(ctx)
	if err != nil {
		log.Printf("[CustomerService] 查询客户列表失败: err=%v", err)
		return nil, apperr.Internal(err)
	}
	return customers, nil
}
