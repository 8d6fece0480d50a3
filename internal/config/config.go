package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 兼容原有部署中使用的占位私钥。
const placeholderPrivateKey = "your_private_key_here"

const baseSepoliaChainID = 84532

// Config 描述了 StackSave 在启动阶段需要加载的全部配置。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bot     BotConfig     `yaml:"bot"`
	Intent  IntentConfig  `yaml:"intent"`
	LLM     LLMConfig     `yaml:"llm"`
	Web3    Web3Config    `yaml:"web3"`
	Inbox   InboxConfig   `yaml:"inbox"`
	Dedup   DedupConfig   `yaml:"dedup"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 控制 webhook 与指标服务的监听地址。
type ServerConfig struct {
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metrics_address"`
	Token          string `yaml:"token"`
}

// BotConfig 描述机器人身份与回复方式。
type BotConfig struct {
	Name              string   `yaml:"name"`
	ReplyStrategy     string   `yaml:"reply_strategy"`
	AdminPhoneNumbers []string `yaml:"admin_phone_numbers"`
	SessionPath       string   `yaml:"session_path"`
}

// IntentConfig 选择意图分类策略。
type IntentConfig struct {
	Strategy string `yaml:"strategy"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	OpenAIAPIKey   string        `yaml:"openai_api_key"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	OpenAIModel    string        `yaml:"openai_model"`
	AnthropicKey   string        `yaml:"anthropic_api_key"`
	AnthropicModel string        `yaml:"anthropic_model"`
	CustomURL      string        `yaml:"custom_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Web3Config 包含访问质押合约所需的信息。
type Web3Config struct {
	RPCURL          string        `yaml:"rpc_url"`
	ContractAddress string        `yaml:"contract_address"`
	PrivateKey      string        `yaml:"private_key"`
	ChainID         int64         `yaml:"chain_id"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

// InboxConfig 选择入站消息队列。driver 为 none 时仅启用 webhook。
type InboxConfig struct {
	Driver   string         `yaml:"driver"`
	Workers  int            `yaml:"workers"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接与 list 名称。
type RedisConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Inbound   string        `yaml:"inbound"`
	Outbound  string        `yaml:"outbound"`
	Prefix    string        `yaml:"prefix"`
	BlockWait time.Duration `yaml:"block_wait"`
}

// RabbitMQConfig 描述 RabbitMQ 连接与队列名称。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	ReplyQueue string `yaml:"reply_queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
}

// DedupConfig 选择重复消息过滤方式。
type DedupConfig struct {
	Driver string        `yaml:"driver"`
	Size   int           `yaml:"size"`
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// JournalConfig 选择交互日志的存储方式。
type JournalConfig struct {
	Driver          string        `yaml:"driver"`
	DataDir         string        `yaml:"data_dir"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// LogConfig 控制日志输出与审计日志。
type LogConfig struct {
	Level           string   `yaml:"level"`
	Format          string   `yaml:"format"`
	Outputs         []string `yaml:"outputs"`
	AuditPath       string   `yaml:"audit_path"`
	AuditMaxSizeMB  int      `yaml:"audit_max_size_mb"`
	AuditMaxBackups int      `yaml:"audit_max_backups"`
}

// Load 读取可选的 YAML 配置文件，加载当前目录的 .env，再应用环境变量与默认值。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	var cfg Config
	baseDir := "."
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取 .env 失败: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}
	return nil
}

// applyEnv 使用环境变量覆盖文件中的配置。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("OPENAI_API_KEY", &c.LLM.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &c.LLM.OpenAIBaseURL)
	str("OPENAI_MODEL", &c.LLM.OpenAIModel)
	str("ANTHROPIC_API_KEY", &c.LLM.AnthropicKey)
	str("CUSTOM_LLM_URL", &c.LLM.CustomURL)
	str("BASE_SEPOLIA_RPC_URL", &c.Web3.RPCURL)
	str("PRIVATE_KEY", &c.Web3.PrivateKey)
	str("STAKING_CONTRACT_ADDRESS", &c.Web3.ContractAddress)
	str("BOT_NAME", &c.Bot.Name)
	str("SESSION_PATH", &c.Bot.SessionPath)
	str("INTENT_STRATEGY", &c.Intent.Strategy)
	str("REPLY_STRATEGY", &c.Bot.ReplyStrategy)
	str("STACKSAVE_API_TOKEN", &c.Server.Token)
	str("MYSQL_DSN", &c.Journal.DSN)
	if v, ok := lookup("ADMIN_PHONE_NUMBERS"); ok && strings.TrimSpace(v) != "" {
		c.Bot.AdminPhoneNumbers = splitList(v)
	}
	if v, ok := lookup("CHAIN_ID"); ok {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.Web3.ChainID = id
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Bot.Name == "" {
		c.Bot.Name = "StackSave Bot"
	}
	c.Bot.ReplyStrategy = lowerOr(c.Bot.ReplyStrategy, "model")
	if c.Bot.SessionPath == "" {
		c.Bot.SessionPath = "./whatsapp-session"
	}
	c.Bot.AdminPhoneNumbers = splitList(strings.Join(c.Bot.AdminPhoneNumbers, ","))

	c.Intent.Strategy = lowerOr(c.Intent.Strategy, "rules")

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 20 * time.Second
	}

	if c.Web3.RPCURL == "" {
		c.Web3.RPCURL = "https://sepolia.base.org"
	}
	if c.Web3.PrivateKey == placeholderPrivateKey {
		c.Web3.PrivateKey = ""
	}
	// 默认 RPC 指向 Base Sepolia，链 ID 随之固定，启动时无需访问节点。
	if c.Web3.ChainID <= 0 {
		c.Web3.ChainID = baseSepoliaChainID
	}
	if c.Web3.ConfirmTimeout <= 0 {
		c.Web3.ConfirmTimeout = 2 * time.Minute
	}

	c.Inbox.Driver = lowerOr(c.Inbox.Driver, "none")
	if c.Inbox.Workers <= 0 {
		c.Inbox.Workers = 4
	}

	c.Dedup.Driver = lowerOr(c.Dedup.Driver, "memory")
	if c.Dedup.TTL <= 0 {
		c.Dedup.TTL = 10 * time.Minute
	}
	if c.Dedup.Driver == "redis" && c.Dedup.Redis.Address == "" {
		c.Dedup.Redis = c.Inbox.Redis
	}

	c.Journal.Driver = lowerOr(c.Journal.Driver, "file")
	if c.Journal.DataDir == "" {
		c.Journal.DataDir = c.Bot.SessionPath
	} else if !filepath.IsAbs(c.Journal.DataDir) {
		c.Journal.DataDir = filepath.Join(baseDir, c.Journal.DataDir)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Log.AuditPath != "" && !filepath.IsAbs(c.Log.AuditPath) {
		c.Log.AuditPath = filepath.Join(baseDir, c.Log.AuditPath)
	}
}

// Validate 检查枚举类配置项。
func (c *Config) Validate() error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"intent.strategy", c.Intent.Strategy, []string{"rules", "model"}},
		{"bot.reply_strategy", c.Bot.ReplyStrategy, []string{"template", "model"}},
		{"inbox.driver", c.Inbox.Driver, []string{"none", "memory", "redis", "rabbitmq"}},
		{"dedup.driver", c.Dedup.Driver, []string{"none", "memory", "redis"}},
		{"journal.driver", c.Journal.Driver, []string{"none", "file", "mysql"}},
	}
	var errs []error
	for _, check := range checks {
		if !contains(check.allowed, check.value) {
			errs = append(errs, fmt.Errorf("%s 不支持 %q，可选值: %s", check.field, check.value, strings.Join(check.allowed, ", ")))
		}
	}
	if c.Journal.Driver == "mysql" && strings.TrimSpace(c.Journal.DSN) == "" {
		errs = append(errs, errors.New("journal.driver 为 mysql 时必须提供 journal.dsn"))
	}
	return errors.Join(errs...)
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
