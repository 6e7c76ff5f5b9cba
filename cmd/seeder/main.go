package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"creditledger/internal/config"
	"creditledger/internal/infrastructure/database"
	"creditledger/internal/model"
	"creditledger/internal/repository"
	"creditledger/internal/service"

	"github.com/shopspring/decimal"
)

type seedCredit struct {
	amount     string
	creditType string
}

type seedCustomer struct {
	name    string
	email   string
	phone   string
	address string
	credits []seedCredit
}

var seedCustomers = []seedCustomer{
	{
		name: "John Doe", email: "john@example.com", phone: "+123456789", address: "123 Main St, City",
		credits: []seedCredit{{"500.00", "deposit"}, {"-120.50", "purchase"}},
	},
	{
		name: "Jane Doe", email: "jane@example.com", phone: "+987654321", address: "456 Elm St, City",
		credits: []seedCredit{{"1000.00", "deposit"}, {"-250.00", "purchase"}, {"50.00", "refund"}},
	},
	{
		name: "Alice Smith", email: "alice@example.com", phone: "+192837465", address: "789 Oak St, City",
		credits: []seedCredit{{"250.00", "deposit"}},
	},
}

// 每个客户的创建和记账在同一个事务内完成：中途失败整体回滚，重新执行即可补齐；
// 已完整写入的客户（email 重复）跳过，不重复记账
func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	if err := seed(context.Background(), repository.NewGormLedgerStore(db)); err != nil {
		log.Fatalf("[Seeder] 初始化数据失败: %v", err)
	}
	log.Println("[Seeder] 初始化数据完成")
}

func seed(ctx context.Context, store repository.LedgerStore) error {
	for _, sc := range seedCustomers {
		sc := sc
		var created *model.Customer
		err := store.Transaction(ctx, func(tx repository.LedgerStore) error {
			customers := service.NewCustomerService(tx)
			credits := service.NewCreditService(tx)

			customer, err := customers.CreateCustomer(ctx, model.CustomerFields{
				Name:    &sc.name,
				Email:   &sc.email,
				Phone:   &sc.phone,
				Address: &sc.address,
			})
			if err != nil {
				return err
			}
			for _, c := range sc.credits {
				if _, err := credits.ApplyCredit(ctx, customer.ID.String(), decimal.RequireFromString(c.amount), c.creditType); err != nil {
					return err
				}
			}
			created = customer
			return nil
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				log.Printf("[Seeder] 客户已存在，跳过: %s", sc.email)
				continue
			}
			return err
		}
		log.Printf("[Seeder] 已创建客户: %s (%s)", sc.name, created.ID)
	}
	return nil
}
