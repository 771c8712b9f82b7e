package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"

	"registry-client-sol/internal/config"
	"registry-client-sol/internal/logic/journal"
	"registry-client-sol/internal/logic/registry"
	"registry-client-sol/internal/logic/submit"
	"registry-client-sol/internal/mq"
	"registry-client-sol/internal/service"
	"registry-client-sol/pkg/logger"
)

// ErrWatcherNeedsSharedJournal watcher 只能看到同一个 journal 中的在途交易，
// 进程内 journal 在独立的 watch 进程里永远为空
var ErrWatcherNeedsSharedJournal = errors.New("confirm watcher requires the redis journal (submit.use_redis_journal: true)")

// ServiceContext 进程内共享的资源
type ServiceContext struct {
	Config    *config.RegistryConfig
	Ledger    *submit.SolanaLedger
	Redis     *redis.Client   // 未启用 Redis journal 时为 nil
	Producer  *kafka.Producer // 未配置 Kafka 时为 nil
	Publisher registry.Publisher
	Pipeline  *submit.Pipeline
	Client    *registry.Client
}

func NewServiceContext(c *config.RegistryConfig) (*ServiceContext, error) {
	ctx := &ServiceContext{
		Config: c,
		Ledger: submit.NewSolanaLedger(c.RpcConf.Endpoint),
	}

	// 1. journal：默认进程内，配置后使用 Redis（多进程共享 intent 归属）
	var j journal.Journal
	if c.SubmitConf.UseRedisJournal {
		rdb := redis.NewClient(c.RedisConf.ToRedisOptions())
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", c.RedisConf.Addr, err)
		}
		ctx.Redis = rdb
		j = journal.NewRedisJournal(rdb, c.SubmitConf.JournalPrefix)
	}

	// 2. 回执发布
	if c.KafkaProducerConf.Brokers != "" {
		producer, err := mq.NewKafkaProducer(c.KafkaProducerConf.ToKafkaOption())
		if err != nil {
			ctx.Close()
			logger.Errorf("[Svc] Kafka producer 初始化失败: %v", err)
			return nil, err
		}
		ctx.Producer = producer
		ctx.Publisher = mq.NewReceiptPublisher(
			producer,
			c.KafkaProducerConf.Topic,
			c.KafkaProducerConf.Partitions,
			time.Duration(c.KafkaProducerConf.SendTimeoutMs)*time.Millisecond,
		)
	}

	// 3. 提交流程与高层客户端
	ctx.Pipeline = submit.NewPipeline(ctx.Ledger, j, c.SubmitConf.ToSubmitOption())
	ctx.Client = registry.NewClient(ctx.Pipeline, c.ProgramConf.Program(), ctx.Publisher)

	logger.Infof("[Svc] 服务上下文初始化完成: rpc=%s, program=%s, redis=%t, kafka=%t",
		c.RpcConf.Endpoint, c.ProgramConf.Program(), ctx.Redis != nil, ctx.Producer != nil)
	return ctx, nil
}

func (ctx *ServiceContext) NewConfirmWatcher() (*service.ConfirmWatcher, error) {
	if ctx.Redis == nil {
		return nil, ErrWatcherNeedsSharedJournal
	}
	return service.NewConfirmWatcher(
		ctx.Pipeline,
		ctx.Publisher,
		ctx.Config.ProgramConf.Program(),
		time.Duration(ctx.Config.WatcherConf.IntervalMs)*time.Millisecond,
		ctx.Config.WatcherConf.BatchSize,
	), nil
}

// Close 关闭服务上下文中的资源
func (ctx *ServiceContext) Close() {
	if ctx.Producer != nil {
		ctx.Producer.Flush(5000)
		ctx.Producer.Close()
	}
	if ctx.Redis != nil {
		_ = ctx.Redis.Close()
	}
}
