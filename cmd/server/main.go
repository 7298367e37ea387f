// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"careerkit-go/internal/config"
	"careerkit-go/internal/handler"
	"careerkit-go/internal/pipeline"
	"careerkit-go/internal/repository"
	"careerkit-go/internal/service"
	"careerkit-go/pkg/database"
	"careerkit-go/pkg/es"
	"careerkit-go/pkg/kafka"
	"careerkit-go/pkg/llm"
	"careerkit-go/pkg/log"
	"careerkit-go/pkg/relay"
	"careerkit-go/pkg/storage"
	"careerkit-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// app 持有进程内所有长生命周期的依赖，关闭时按相反顺序释放。
type app struct {
	redis    *redis.Client
	producer *kafka.Producer
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := &app{}
	defer a.close()

	// 3. 初始化持久化后端
	kv, err := newKVRepository(ctx, cfg, a)
	if err != nil {
		log.Fatal("存储后端初始化失败", err)
	}
	var authRepo repository.AuthRepository = repository.NewMemoryAuthRepository()
	if a.redis != nil {
		authRepo = repository.NewRedisAuthRepository(a.redis)
	}

	// 4. 初始化可选的索引、事件与导出组件
	var searcher service.IDSearcher
	var publisher service.EventPublisher
	var processor *pipeline.Processor
	if cfg.Elasticsearch.Enabled {
		index, err := es.New(ctx, cfg.Elasticsearch)
		if err != nil {
			log.Errorf("es 初始化失败, 搜索将回退到内存匹配: %v", err)
		} else {
			searcher = index
			processor = pipeline.NewProcessor(index)
			publisher = processor
		}
	}
	if cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, func() { _ = a.producer.Close() })
		publisher = a.producer
		if processor != nil {
			go kafka.StartConsumer(ctx, cfg.Kafka, processor)
		}
	}
	var writer service.ObjectWriter
	if cfg.MinIO.Enabled {
		objectStore, err := storage.NewObjectStore(ctx, cfg.MinIO)
		if err != nil {
			log.Errorf("MinIO 初始化失败, 导出不可用: %v", err)
		} else {
			writer = objectStore
		}
	}

	// 5. 初始化 Service (依赖注入)
	store := service.NewSavedResponseService(repository.NewSavedResponseRepository(kv, cfg.Storage.Key), publisher)
	store.Load(ctx)
	if processor != nil {
		if err := processor.Reindex(ctx, store.List()); err != nil {
			log.Warnf("启动时重建索引失败: %v", err)
		}
	}

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	services := handler.Services{
		Store:      store,
		Relay:      service.NewRelayService(cfg.LLM, llm.NewClient(cfg.LLM)),
		Tools:      service.NewToolService(relay.NewClient(cfg.Relay.URL), service.DefaultPanels()),
		Auth:       service.NewAuthService(authRepo, jwtManager, time.Duration(cfg.Auth.CodeTTLSeconds)*time.Second),
		Search:     service.NewSearchService(store, searcher),
		Export:     service.NewExportService(store, writer),
		JWTManager: jwtManager,
	}
	if !cfg.LLM.Configured() {
		log.Warnf("未配置 HF_API_KEY, /api/ai 将返回 500")
	}

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(services)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 停止 Kafka 消费者
	cancel()
	log.Info("服务已优雅关闭")
}

// newKVRepository 按 storage.driver 选择已保存回答的持久化后端。
func newKVRepository(ctx context.Context, cfg config.Config, a *app) (repository.KVRepository, error) {
	switch cfg.Storage.Driver {
	case "redis":
		rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		return repository.NewRedisKVRepository(rdb), nil
	case "mysql":
		db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		}
		return repository.NewGormKVRepository(db), nil
	case "memory":
		log.Warnf("使用内存存储, 已保存的回答不会在重启后保留")
		return repository.NewMemoryKVRepository(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
