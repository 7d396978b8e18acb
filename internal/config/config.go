package config

import (
	"fmt"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
)

// DatabaseConfig PostgreSQL连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 构建PostgreSQL连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT连接配置（设备控制下发）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// 控制指令主题前缀，如 "dcim/control/"
	ControlTopicPrefix string
}

// Config DCIM服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 采集配置
	Sampler struct {
		Interval   int     // 采集周期（秒），默认 5秒
		AIStepPct  float64 // AI随机游走步长（量程百分比），默认 0.02
		DIFireProb float64 // DI动作概率，默认 0.005
	}

	// 历史归档配置
	History struct {
		RawRetentionDays     int // 原始数据保留天数，默认 30
		HourlyRetentionDays  int // 小时归档保留天数，默认 365
		DailyRetentionDays   int // 日归档保留天数，默认 1095
		MonthlyRetentionDays int // 月归档保留天数，默认 3650
		PruneBatchSize       int // 清理批次行数，默认 5000
		TrendMaxRows         int // 历史查询行数上限，默认 10000
	}

	// 报警引擎配置
	Alarm struct {
		// 延时/去重状态键前缀，如 "dcim:alarm:state:"
		StateKeyPrefix string
		StateTTL       int // 状态 TTL（秒），默认 3600
	}

	// 实时缓存配置
	Realtime struct {
		KeyPrefix string // 实时值缓存键前缀，如 "dcim:point:"
		TTL       int    // 实时值 TTL（秒），默认 120
	}

	// 推送配置
	Hub struct {
		SubscriberBuffer int // 每订阅者缓冲条数，默认 16
	}

	// 分析配置
	Analysis struct {
		EnergyDays      int    // 能耗序列天数，默认 30
		BillMonths      int    // 账单月数，默认 12
		EnvironmentDays int    // 环境/PUE序列天数，默认 7
		CronSpec        string // 夜间分析调度，默认 "0 2 * * *"
	}

	// 通知配置
	Notify struct {
		WebhookURL string // 为空则不通知
		RetryCount int    // 失败重试次数，默认 2
		TimeoutSec int    // 请求超时（秒），默认 5
	}

	HTTP struct {
		Addr string // 监听地址，默认 ":8080"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "dcim")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "dcim-core")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.ControlTopicPrefix = getEnv("MQTT_CONTROL_PREFIX", "dcim/control/")

	cfg.Sampler.Interval = getEnvInt("SAMPLE_INTERVAL", 5)
	cfg.Sampler.AIStepPct = getEnvFloat("SAMPLE_AI_STEP_PCT", 0.02)
	cfg.Sampler.DIFireProb = getEnvFloat("SAMPLE_DI_FIRE_PROB", 0.005)

	cfg.History.RawRetentionDays = getEnvInt("HISTORY_RAW_DAYS", 30)
	cfg.History.HourlyRetentionDays = getEnvInt("HISTORY_HOURLY_DAYS", 365)
	cfg.History.DailyRetentionDays = getEnvInt("HISTORY_DAILY_DAYS", 1095)
	cfg.History.MonthlyRetentionDays = getEnvInt("HISTORY_MONTHLY_DAYS", 3650)
	cfg.History.PruneBatchSize = getEnvInt("HISTORY_PRUNE_BATCH", 5000)
	cfg.History.TrendMaxRows = getEnvInt("HISTORY_MAX_ROWS", 10000)

	cfg.Alarm.StateKeyPrefix = getEnv("ALARM_STATE_PREFIX", "dcim:alarm:state:")
	cfg.Alarm.StateTTL = getEnvInt("ALARM_STATE_TTL", 3600)

	cfg.Realtime.KeyPrefix = getEnv("REALTIME_KEY_PREFIX", "dcim:point:")
	cfg.Realtime.TTL = getEnvInt("REALTIME_TTL", 120)

	cfg.Hub.SubscriberBuffer = getEnvInt("HUB_SUBSCRIBER_BUFFER", 16)

	cfg.Analysis.EnergyDays = getEnvInt("ANALYSIS_ENERGY_DAYS", 30)
	cfg.Analysis.BillMonths = getEnvInt("ANALYSIS_BILL_MONTHS", 12)
	cfg.Analysis.EnvironmentDays = getEnvInt("ANALYSIS_ENV_DAYS", 7)
	cfg.Analysis.CronSpec = getEnv("ANALYSIS_CRON", "0 2 * * *")

	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Notify.RetryCount = getEnvInt("NOTIFY_RETRY", 2)
	cfg.Notify.TimeoutSec = getEnvInt("NOTIFY_TIMEOUT", 5)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
