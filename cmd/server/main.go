package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creditledger/internal/config"
	"creditledger/internal/handler"
	"creditledger/internal/infrastructure/cache"
	"creditledger/internal/infrastructure/database"
	"creditledger/internal/infrastructure/lock"
	"creditledger/internal/infrastructure/mq"
	"creditledger/internal/job"
	"creditledger/internal/repository"
	"creditledger/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	store := repository.NewGormLedgerStore(db)
	var creditOpts []service.CreditOption

	// 初始化 Redis（可选，多实例部署时开启）
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("连接 Redis 失败: %v", err)
		}
		defer rdb.Close()
		ttl := time.Duration(cfg.Redis.LockTTLSeconds) * time.Second
		creditOpts = append(creditOpts, service.WithLocker(lock.NewCustomerLocker(rdb, ttl)))
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 Kafka 和 outbox 投递任务（可选）
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(&cfg.Kafka)
		if err != nil {
			log.Fatalf("初始化 Kafka 失败: %v", err)
		}
		defer producer.Close()

		creditOpts = append(creditOpts, service.WithCreditAppliedTopic(cfg.Kafka.Topic.CreditApplied))

		outboxSender := job.NewOutboxSender(repository.NewOutboxRepository(db), producer, &cfg.Business)
		go outboxSender.Start(ctx)
	}

	h := handler.NewHandler(
		service.NewCustomerService(store),
		service.NewCreditService(store, creditOpts...),
	)

	// 设置路由
	router := handler.SetupRouter(h, cfg.Server.Mode)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
