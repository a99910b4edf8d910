package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	SQLite        SQLiteConfig
	Redis         RedisConfig
	Neo4j         Neo4jConfig
	Zilliz        ZillizConfig
	LLM           LLMConfig
	Mail          MailConfig
	Logging       LoggingConfig
	Scoring       ScoringConfig
	Monitoring    MonitoringConfig
	Notifications NotificationsConfig
	ROI           ROIConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxRequestsPerMinute int
	AllowedOrigins       []string
	Development          bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type ZillizConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type LLMConfig struct {
	APIKey         string
	EmbeddingModel string
	TimeoutSec     int
}

type MailConfig struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	TimeoutSec int
	MaxRetries int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type ScoringConfig struct {
	MinConfidenceForReview      float64
	MinConfidenceForAutoPublish float64
}

type MonitoringConfig struct {
	MaxAlerts             int
	HealthCheckInterval   time.Duration
	PerformanceInterval   time.Duration
	SyncInterval          time.Duration
	ProbeTimeout          time.Duration
	NotifyTimeout         time.Duration
	MinApprovalRate       float64
	MaxErrorRate          float64
	MaxResponseTimeMs     float64
	PipelineApprovalFloor float64
	QueueBacklogThreshold int
	SettingsCacheTTL      time.Duration
}

type NotificationsConfig struct {
	Enabled     bool
	AdminEmails []string
}

type ROIConfig struct {
	TicketHandlingMinutes float64
	CostPerTicket         float64
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/faqminer")

	viper.SetEnvPrefix("FAQMINER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration with every default applied and nothing read
// from files or the environment.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxRequestsPerMinute", 120)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/faqminer.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", 5*time.Minute)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("zilliz.enabled", false)
	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.collectionName", "faq_questions")
	v.SetDefault("zilliz.vectorDim", 1536)

	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.timeoutSec", 15)

	v.SetDefault("mail.baseURL", "https://api.sendgrid.com")
	v.SetDefault("mail.fromEmail", "alerts@faqminer.local")
	v.SetDefault("mail.fromName", "FAQ Miner")
	v.SetDefault("mail.timeoutSec", 10)
	v.SetDefault("mail.maxRetries", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("scoring.minConfidenceForReview", 60.0)
	v.SetDefault("scoring.minConfidenceForAutoPublish", 85.0)

	v.SetDefault("monitoring.maxAlerts", 100)
	v.SetDefault("monitoring.healthCheckInterval", 10*time.Minute)
	v.SetDefault("monitoring.performanceInterval", time.Hour)
	v.SetDefault("monitoring.syncInterval", 6*time.Hour)
	v.SetDefault("monitoring.probeTimeout", 5*time.Second)
	v.SetDefault("monitoring.notifyTimeout", 10*time.Second)
	v.SetDefault("monitoring.minApprovalRate", 50.0)
	v.SetDefault("monitoring.maxErrorRate", 20.0)
	v.SetDefault("monitoring.maxResponseTimeMs", 5000.0)
	v.SetDefault("monitoring.pipelineApprovalFloor", 30.0)
	v.SetDefault("monitoring.queueBacklogThreshold", 100)
	v.SetDefault("monitoring.settingsCacheTTL", 30*time.Second)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.adminEmails", []string{})

	v.SetDefault("roi.ticketHandlingMinutes", 15.0)
	v.SetDefault("roi.costPerTicket", 25.0)
}
