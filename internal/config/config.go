package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	SSH       SSHConfig
	Network   NetworkConfig
	Store     StoreConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Asynq     AsynqConfig
	Log       LogConfig
}

type AppConfig struct {
	Env  string
	Port string
}

// SSHConfig describes the server-owned deployment key used by the Remote
// Executor and the host-validation override.
type SSHConfig struct {
	KeyPath            string
	PublicKeyPath      string
	AllowLoopbackHosts bool
}

// NetworkConfig holds the base URLs of the decentralized network's
// read-only collaborators.
type NetworkConfig struct {
	SchedulerBaseURL string
	CRNListURL       string
	GatewayBaseURL   string
	BalanceBaseURL   string
	CaddyBaseDomain  string
}

type StoreConfig struct {
	SnapshotPath string
}

type AuthConfig struct {
	NonceTTL        time.Duration
	SessionTTL      time.Duration
	NonceRateLimit  int
	VerifyRateLimit int
}

type DatabaseConfig struct {
	Host             string
	Port             string
	User             string
	Password         string
	DBName           string
	SSLMode          string
	EventLogEnabled  bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AsynqConfig struct {
	Concurrency int
	Queues      map[string]int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	config := &Config{
		App: AppConfig{
			Env:  viper.GetString("app.env"),
			Port: viper.GetString("app.port"),
		},
		SSH: SSHConfig{
			KeyPath:            viper.GetString("ssh.key_path"),
			PublicKeyPath:      viper.GetString("ssh.public_key_path"),
			AllowLoopbackHosts: viper.GetBool("ssh.allow_loopback_hosts"),
		},
		Network: NetworkConfig{
			SchedulerBaseURL: viper.GetString("network.scheduler_base_url"),
			CRNListURL:       viper.GetString("network.crn_list_url"),
			GatewayBaseURL:   viper.GetString("network.gateway_base_url"),
			BalanceBaseURL:   viper.GetString("network.balance_base_url"),
			CaddyBaseDomain:  viper.GetString("network.caddy_base_domain"),
		},
		Store: StoreConfig{
			SnapshotPath: viper.GetString("store.snapshot_path"),
		},
		Auth: AuthConfig{
			NonceTTL:        viper.GetDuration("auth.nonce_ttl"),
			SessionTTL:      viper.GetDuration("auth.session_ttl"),
			NonceRateLimit:  viper.GetInt("auth.nonce_rate_limit"),
			VerifyRateLimit: viper.GetInt("auth.verify_rate_limit"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("db.host"),
			Port:            viper.GetString("db.port"),
			User:            viper.GetString("db.user"),
			Password:        viper.GetString("db.password"),
			DBName:          viper.GetString("db.name"),
			SSLMode:         viper.GetString("db.sslmode"),
			EventLogEnabled: viper.GetBool("db.eventlog_enabled"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Asynq: AsynqConfig{
			Concurrency: viper.GetInt("asynq.concurrency"),
			Queues:      parseQueues(viper.GetString("asynq.queues")),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.port", "8080")

	viper.SetDefault("ssh.key_path", "")
	viper.SetDefault("ssh.public_key_path", "")
	viper.SetDefault("ssh.allow_loopback_hosts", false)

	viper.SetDefault("network.scheduler_base_url", "https://scheduler.api.aleph.cloud")
	viper.SetDefault("network.crn_list_url", "https://crns-list.aleph.sh/crns.json")
	viper.SetDefault("network.gateway_base_url", "https://api.2n6.me")
	viper.SetDefault("network.balance_base_url", "https://api2.aleph.im")
	viper.SetDefault("network.caddy_base_domain", "2n6.me")

	viper.SetDefault("store.snapshot_path", "/tmp/marketplace_deployments.json")

	viper.SetDefault("auth.nonce_ttl", "300s")
	viper.SetDefault("auth.session_ttl", "86400s")
	viper.SetDefault("auth.nonce_rate_limit", 20)
	viper.SetDefault("auth.verify_rate_limit", 10)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "deployuser")
	viper.SetDefault("db.password", "deploypassword")
	viper.SetDefault("db.name", "deploy_control_plane")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("db.eventlog_enabled", false)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("asynq.concurrency", 5)
	viper.SetDefault("asynq.queues", "default:3,low:1")

	viper.SetDefault("log.level", "debug")
	viper.SetDefault("log.format", "json")

	viper.BindEnv("app.env", "APP_ENV")
	viper.BindEnv("app.port", "APP_PORT")
	viper.BindEnv("ssh.key_path", "SSH_DEPLOY_KEY_PATH")
	viper.BindEnv("ssh.public_key_path", "SSH_DEPLOY_PUBLIC_KEY_PATH")
	viper.BindEnv("ssh.allow_loopback_hosts", "SSH_ALLOW_LOOPBACK_HOSTS")
	viper.BindEnv("network.scheduler_base_url", "NETWORK_SCHEDULER_BASE_URL")
	viper.BindEnv("network.crn_list_url", "NETWORK_CRN_LIST_URL")
	viper.BindEnv("network.gateway_base_url", "NETWORK_GATEWAY_BASE_URL")
	viper.BindEnv("network.balance_base_url", "NETWORK_BALANCE_BASE_URL")
	viper.BindEnv("network.caddy_base_domain", "NETWORK_CADDY_BASE_DOMAIN")
	viper.BindEnv("store.snapshot_path", "STORE_SNAPSHOT_PATH")
	viper.BindEnv("auth.nonce_ttl", "AUTH_NONCE_TTL")
	viper.BindEnv("auth.session_ttl", "AUTH_SESSION_TTL")
	viper.BindEnv("auth.nonce_rate_limit", "AUTH_NONCE_RATE_LIMIT")
	viper.BindEnv("auth.verify_rate_limit", "AUTH_VERIFY_RATE_LIMIT")
	viper.BindEnv("db.host", "DB_HOST")
	viper.BindEnv("db.port", "DB_PORT")
	viper.BindEnv("db.user", "DB_USER")
	viper.BindEnv("db.password", "DB_PASSWORD")
	viper.BindEnv("db.name", "DB_NAME")
	viper.BindEnv("db.sslmode", "DB_SSL_MODE")
	viper.BindEnv("db.eventlog_enabled", "DB_EVENTLOG_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("asynq.concurrency", "ASYNQ_CONCURRENCY")
	viper.BindEnv("asynq.queues", "ASYNQ_QUEUES")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")
}

func parseQueues(queueStr string) map[string]int {
	queues := make(map[string]int)
	if queueStr == "" {
		queues["default"] = 3
		return queues
	}

	pairs := strings.Split(queueStr, ",")
	for _, pair := range pairs {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) == 2 {
			var priority int
			fmt.Sscanf(parts[1], "%d", &priority)
			queues[parts[0]] = priority
		}
	}
	return queues
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func IsDevelopment(env string) bool {
	return env == "development"
}

func IsProduction(env string) bool {
	return env == "production"
}
