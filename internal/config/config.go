// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Vision        VisionConfig        `mapstructure:"vision"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// SeedDir 中的文件在启动时导入到 SeedAgentID 名下，目录不存在时跳过。
	SeedDir     string `mapstructure:"seed_dir"`
	SeedAgentID uint   `mapstructure:"seed_agent_id"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // mysql、postgres 或 sqlite
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PostgresConfig 存储 PostgreSQL 数据库的配置。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 用于本地开发和命令行工具。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers        string `mapstructure:"brokers"`
	Topic          string `mapstructure:"topic"`
	GroupID        string `mapstructure:"group_id"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	RetryBackoffMs int    `mapstructure:"retry_backoff_ms"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
// Enabled 为 false 时不会建立分块镜像索引。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
	Dims      int    `mapstructure:"dims"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey               string `mapstructure:"api_key"`
	BaseURL              string `mapstructure:"base_url"`
	Model                string `mapstructure:"model"`
	Dimensions           int    `mapstructure:"dimensions"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	QueryCacheTTLMinutes int    `mapstructure:"query_cache_ttl_minutes"`
}

// VisionConfig 存储视觉模型（图片描述）相关的配置。
type VisionConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// IngestionConfig 存储文档入库流程的参数。
type IngestionConfig struct {
	EmbeddingConcurrency int    `mapstructure:"embedding_concurrency"`
	ChunkMinSize         int    `mapstructure:"chunk_min_size"`
	ChunkMaxSize         int    `mapstructure:"chunk_max_size"`
	SummarySentences     int    `mapstructure:"summary_sentences"`
	KeyPoints            int    `mapstructure:"key_points"`
	RunVision            bool   `mapstructure:"run_vision"`
	MaxVisionImages      int    `mapstructure:"max_vision_images"`
	TempDir              string `mapstructure:"temp_dir"`
}

// RetrievalConfig 存储混合检索的权重与预算。
type RetrievalConfig struct {
	CandidateSource   string  `mapstructure:"candidate_source"`    // database 或 elasticsearch
	CandidatePageSize int     `mapstructure:"candidate_page_size"` // 仅 elasticsearch 分页使用
	KeywordWeight     float64 `mapstructure:"keyword_weight"`
	SemanticWeight    float64 `mapstructure:"semantic_weight"`
	MinScore          float64 `mapstructure:"min_score"`
	TokenBudget       int     `mapstructure:"token_budget"`
	ReservedTokens    int     `mapstructure:"reserved_tokens"`
	MaxChunks         int     `mapstructure:"max_chunks"`
	MinChunks         int     `mapstructure:"min_chunks"`
	MaxChunkLength    int     `mapstructure:"max_chunk_length"`
	DefaultLimit      int     `mapstructure:"default_limit"`
}

// AnalysisConfig 存储文档结构分析（是否需要视觉分析）的参数。
// Categories 为空时使用内置的五个类别。
type AnalysisConfig struct {
	CostPerImage float64          `mapstructure:"cost_per_image"`
	Categories   []CategoryConfig `mapstructure:"categories"`
}

// CategoryConfig 描述一个视觉内容关键词类别。
type CategoryConfig struct {
	Name     string   `mapstructure:"name"`
	Label    string   `mapstructure:"label"`
	Weight   float64  `mapstructure:"weight"`
	Keywords []string `mapstructure:"keywords"`
}

// setDefaults 为所有可调参数注册默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.seed_dir", "initfile")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.group_id", "canon-rag-go-consumer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.retry_backoff_ms", 2000)
	v.SetDefault("tika.timeout_seconds", 120)
	v.SetDefault("elasticsearch.index_name", "document_chunks")
	v.SetDefault("elasticsearch.dims", 1536)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.query_cache_ttl_minutes", 30)
	v.SetDefault("vision.max_tokens", 800)
	v.SetDefault("vision.timeout_seconds", 120)

	v.SetDefault("ingestion.embedding_concurrency", 1)
	v.SetDefault("ingestion.chunk_min_size", 200)
	v.SetDefault("ingestion.chunk_max_size", 500)
	v.SetDefault("ingestion.summary_sentences", 3)
	v.SetDefault("ingestion.key_points", 5)
	v.SetDefault("ingestion.max_vision_images", 10)

	v.SetDefault("retrieval.candidate_source", "database")
	v.SetDefault("retrieval.candidate_page_size", 500)
	v.SetDefault("retrieval.keyword_weight", 0.4)
	v.SetDefault("retrieval.semantic_weight", 0.6)
	v.SetDefault("retrieval.min_score", 0.1)
	v.SetDefault("retrieval.token_budget", 4000)
	v.SetDefault("retrieval.reserved_tokens", 1000)
	v.SetDefault("retrieval.max_chunks", 5)
	v.SetDefault("retrieval.min_chunks", 2)
	v.SetDefault("retrieval.max_chunk_length", 1500)
	v.SetDefault("retrieval.default_limit", 3)

	v.SetDefault("analysis.cost_per_image", 0.01)
}

// Load 从指定路径读取 YAML 配置，叠加 .env 与 RAG_ 前缀的环境变量后返回。
func Load(configPath string) (Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
