package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"registry-client-sol/internal/consts"
	"registry-client-sol/internal/logic/submit"
	"registry-client-sol/internal/mq"
	"registry-client-sol/internal/types"
	"registry-client-sol/pkg/logger"
)

type LogConfig struct {
	Format   string `yaml:"format" validate:"omitempty,oneof=console json"`         // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`                                                // 日志目录（可为相对路径或绝对路径），为空时只输出到 stdout
	Level    string `yaml:"level" validate:"omitempty,oneof=debug info warn error"` // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"`                                               // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// RpcConfig Solana JSON-RPC 节点
type RpcConfig struct {
	Endpoint string `yaml:"endpoint" validate:"required,url"` // 例如 http://127.0.0.1:8899
}

// ProgramConfig 链上 registry 程序
type ProgramConfig struct {
	ProgramID string `yaml:"program_id" validate:"omitempty,pubkey"` // 为空时使用默认部署地址
	Keypair   string `yaml:"keypair"`                                // solana-keygen 生成的 keypair 文件路径
}

func (c *ProgramConfig) Program() types.Pubkey {
	if c.ProgramID == "" {
		return consts.DefaultRegistryProgram
	}
	return types.PubkeyFromBase58(c.ProgramID)
}

// SubmitConfig 交易提交参数（时间单位：毫秒，0 表示使用默认值）
type SubmitConfig struct {
	PreflightCommitment string `yaml:"preflight_commitment" validate:"omitempty,oneof=processed confirmed finalized"`
	Commitment          string `yaml:"commitment" validate:"omitempty,oneof=processed confirmed finalized"`

	PollIntervalMs    int `yaml:"poll_interval_ms" validate:"gte=0"`    // 轮询签名状态的间隔
	SubmitTimeoutMs   int `yaml:"submit_timeout_ms" validate:"gte=0"`   // 单次 RPC 超时
	ConfirmTimeoutMs  int `yaml:"confirm_timeout_ms" validate:"gte=0"`  // 等待确认的超时
	MaxSubmitAttempts int `yaml:"max_submit_attempts" validate:"gte=0"` // 传输错误时重发同一交易的最大次数
	RetryInitialMs    int `yaml:"retry_initial_ms" validate:"gte=0"`    // 重发退避初始间隔
	RetryMaxMs        int `yaml:"retry_max_ms" validate:"gte=0"`        // 重发退避最大间隔

	UseRedisJournal bool   `yaml:"use_redis_journal"`                          // 使用 Redis 记录交易状态（多进程共享）
	JournalPrefix   string `yaml:"journal_prefix" validate:"omitempty,max=64"` // Redis key 前缀
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (c *SubmitConfig) ToSubmitOption() submit.Options {
	return submit.Options{
		PreflightCommitment:  submit.Commitment(c.PreflightCommitment),
		Commitment:           submit.Commitment(c.Commitment),
		PollInterval:         ms(c.PollIntervalMs),
		SubmitTimeout:        ms(c.SubmitTimeoutMs),
		ConfirmTimeout:       ms(c.ConfirmTimeoutMs),
		MaxSubmitAttempts:    c.MaxSubmitAttempts,
		RetryInitialInterval: ms(c.RetryInitialMs),
		RetryMaxInterval:     ms(c.RetryMaxMs),
	}
}

// RedisConfig journal 使用的 Redis
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"` // 例如 127.0.0.1:6379
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

func (c *RedisConfig) ToRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

// KafkaProducerConfig 回执事件的 Kafka 生产者，brokers 为空时不发布事件
type KafkaProducerConfig struct {
	Brokers       string `yaml:"brokers"`                     // Kafka broker 地址，多个用英文逗号分隔
	BatchSize     int    `yaml:"batch_size" validate:"gte=0"` // 批处理大小（单位字节）
	LingerMs      int    `yaml:"linger_ms"`                   // 批处理最大延迟（毫秒）
	Topic         string `yaml:"topic" validate:"required_with=Brokers"`
	Partitions    int    `yaml:"partitions" validate:"gte=0"`      // topic 的分区数
	SendTimeoutMs int    `yaml:"send_timeout_ms" validate:"gte=0"` // 单条事件发送到 Kafka 并等待 ack 的超时时间
}

func (c *KafkaProducerConfig) ToKafkaOption() mq.KafkaProducerOption {
	return mq.KafkaProducerOption{
		Brokers:   c.Brokers,
		BatchSize: c.BatchSize,
		LingerMs:  c.LingerMs,
		Topics: []mq.TopicOption{
			{Topic: c.Topic, Partitions: c.Partitions},
		},
	}
}

// WatcherConfig ConfirmWatcher 轮询参数
type WatcherConfig struct {
	IntervalMs int `yaml:"interval_ms" validate:"gte=0"` // 两轮之间的间隔
	BatchSize  int `yaml:"batch_size" validate:"gte=0"`  // 每轮最多处理的签名数
}

// RegistryConfig 主配置
type RegistryConfig struct {
	LogConf           LogConfig           `yaml:"logger"`         // 日志配置
	RpcConf           RpcConfig           `yaml:"rpc"`            // RPC 节点
	ProgramConf       ProgramConfig       `yaml:"program"`        // 链上程序
	SubmitConf        SubmitConfig        `yaml:"submit"`         // 提交参数
	RedisConf         RedisConfig         `yaml:"redis"`          // Redis
	KafkaProducerConf KafkaProducerConfig `yaml:"kafka_producer"` // Kafka 生产者配置
	WatcherConf       WatcherConfig       `yaml:"watcher"`        // ConfirmWatcher
}

func (c *RegistryConfig) applyDefaults() {
	if c.LogConf.Format == "" {
		c.LogConf.Format = "console"
	}
	if c.LogConf.Level == "" {
		c.LogConf.Level = "info"
	}
	if c.SubmitConf.JournalPrefix == "" {
		c.SubmitConf.JournalPrefix = "registry"
	}
	if c.KafkaProducerConf.Partitions <= 0 {
		c.KafkaProducerConf.Partitions = 1
	}
	if c.KafkaProducerConf.SendTimeoutMs <= 0 {
		c.KafkaProducerConf.SendTimeoutMs = 5000
	}
	if c.WatcherConf.IntervalMs <= 0 {
		c.WatcherConf.IntervalMs = 2000
	}
	if c.WatcherConf.BatchSize <= 0 {
		c.WatcherConf.BatchSize = 256
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
		_, err := types.TryPubkeyFromBase58(fl.Field().String())
		return err == nil
	})
	return v
}

func (c *RegistryConfig) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.SubmitConf.UseRedisJournal && c.RedisConf.Addr == "" {
		return fmt.Errorf("invalid config: submit.use_redis_journal requires redis.addr")
	}
	return nil
}

// Parse 解析 YAML 并填充默认值、校验
func Parse(data []byte) (*RegistryConfig, error) {
	var c RegistryConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load(path string) (*RegistryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func MustLoad(path string) *RegistryConfig {
	c, err := Load(path)
	if err != nil {
		panic(err)
	}
	return c
}
