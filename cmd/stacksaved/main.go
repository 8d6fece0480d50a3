package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"StackSave/internal/api"
	"StackSave/internal/bot"
	"StackSave/internal/chat"
	"StackSave/internal/config"
	"StackSave/internal/dedup"
	"StackSave/internal/dispatch"
	"StackSave/internal/inbox"
	"StackSave/internal/intent"
	"StackSave/internal/llm/provider"
	"StackSave/internal/observability/alerting"
	"StackSave/internal/observability/metrics"
	"StackSave/internal/reply"
	"StackSave/internal/storage/journal"
	"StackSave/internal/web3/ethereum"
	"StackSave/pkg/logger"
)

// main 是 StackSave 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("stacksaved 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("STACKSAVE_CONFIG")
	if configPath == "" {
		if _, err := os.Stat(filepath.Join("configs", "stacksave.yaml")); err == nil {
			configPath = filepath.Join("configs", "stacksave.yaml")
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.AuditPath != "",
			Path:       cfg.Log.AuditPath,
			MaxSizeMB:  cfg.Log.AuditMaxSizeMB,
			MaxBackups: cfg.Log.AuditMaxBackups,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	mainLog := logger.Named("main")

	// 大模型是可选的，未配置时使用规则分类与固定模板。
	llmClient := provider.New(provider.Config{
		Provider:       cfg.LLM.Provider,
		OpenAIAPIKey:   cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL:  cfg.LLM.OpenAIBaseURL,
		OpenAIModel:    cfg.LLM.OpenAIModel,
		AnthropicKey:   cfg.LLM.AnthropicKey,
		AnthropicModel: cfg.LLM.AnthropicModel,
		CustomURL:      cfg.LLM.CustomURL,
		Timeout:        cfg.LLM.Timeout,
	})
	classifier := intent.New(cfg.Intent.Strategy, llmClient, intent.WithModelTimeout(cfg.LLM.Timeout))
	renderer := reply.New(cfg.Bot.ReplyStrategy, llmClient,
		reply.WithPersonaName(cfg.Bot.Name),
		reply.WithRenderTimeout(cfg.LLM.Timeout))

	var gatewayOpts []ethereum.Option
	if cfg.Web3.PollInterval > 0 {
		gatewayOpts = append(gatewayOpts, ethereum.WithPollInterval(cfg.Web3.PollInterval))
	}
	gateway := ethereum.NewStakingGateway(ctx, ethereum.Config{
		RPCURL:          cfg.Web3.RPCURL,
		ContractAddress: cfg.Web3.ContractAddress,
		PrivateKey:      cfg.Web3.PrivateKey,
		ChainID:         cfg.Web3.ChainID,
		ConfirmTimeout:  cfg.Web3.ConfirmTimeout,
	}, gatewayOpts...)
	defer gateway.Close()

	interactions, closeJournal, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer closeJournal()

	queue, err := openQueue(ctx, cfg.Inbox)
	if err != nil {
		return err
	}
	var sink chat.Sink
	if queue != nil {
		sink = queue
		defer func() {
			if err := queue.Close(); err != nil {
				mainLog.Warn("关闭消息队列失败", slog.Any("error", err))
			}
		}()
	}

	guard, closeGuard, err := openGuard(ctx, cfg.Dedup)
	if err != nil {
		return err
	}
	defer closeGuard()

	alerter := alerting.NewFanout(
		alerting.AuditNotifier{},
		&alerting.AdminNotifier{Sink: sink, Admins: cfg.Bot.AdminPhoneNumbers},
	)

	pipeline := bot.New(classifier, dispatch.New(gateway, renderer),
		bot.WithJournal(interactions),
		bot.WithAlerter(alerter),
		bot.WithReplyStrategy(renderer.Name()))

	var source inbox.Source
	if queue != nil {
		source = queue
	}
	processor := inbox.NewProcessor(pipeline, source, sink,
		inbox.WithWorkerCount(cfg.Inbox.Workers),
		inbox.WithGuard(guard))

	mainLog.Info("StackSave 已启动",
		slog.String("bot", cfg.Bot.Name),
		slog.String("intent_strategy", classifier.Name()),
		slog.String("reply_strategy", renderer.Name()),
		slog.Bool("defi_enabled", gateway.Configured()),
		slog.String("inbox", cfg.Inbox.Driver),
		slog.String("journal", journal.Describe(interactions)))

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	if source != nil {
		go func() {
			if err := processor.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				mainLog.Error("消息处理器异常退出", slog.Any("error", err))
			}
		}()
	}
	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(workerCtx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				mainLog.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, processor,
		api.WithJournal(interactions),
		api.WithToken(cfg.Server.Token))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.InteractionRepository, func(), error) {
	switch cfg.Driver {
	case "none":
		return nil, func() {}, nil
	case "file":
		repo, err := journal.NewFileInteractionRepository(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	case "mysql":
		repo, err := journal.NewSQLInteractionRepository(ctx, journal.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的交互日志驱动: %s", cfg.Driver)
	}
}

func openQueue(ctx context.Context, cfg config.InboxConfig) (inbox.Queue, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "memory":
		return inbox.NewMemoryQueue(1024), nil
	case "redis":
		return inbox.NewRedisQueue(ctx, inbox.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Inbound:   cfg.Redis.Inbound,
			Outbound:  cfg.Redis.Outbound,
			BlockWait: cfg.Redis.BlockWait,
		})
	case "rabbitmq":
		return inbox.NewRabbitMQQueue(inbox.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			ReplyQueue: cfg.RabbitMQ.ReplyQueue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

func openGuard(ctx context.Context, cfg config.DedupConfig) (dedup.Guard, func(), error) {
	switch cfg.Driver {
	case "none":
		return dedup.Nop{}, func() {}, nil
	case "memory":
		return dedup.NewMemoryGuard(cfg.Size, cfg.TTL), func() {}, nil
	case "redis":
		guard, err := dedup.NewRedisGuard(ctx, dedup.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return guard, func() { _ = guard.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的去重驱动: %s", cfg.Driver)
	}
}
