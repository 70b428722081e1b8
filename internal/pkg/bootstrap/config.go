// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，来源于本地 YAML 或 Nacos 配置中心。
type Config struct {
	App          AppConfig          `yaml:"app"`
	Infra        InfraConfig        `yaml:"infra"`
	Auth         AuthConfig         `yaml:"auth"`
	Fraud        FraudConfig        `yaml:"fraud"`
	Cache        CacheConfig        `yaml:"cache"`
	Locking      LockingConfig      `yaml:"locking"`
	Notification NotificationConfig `yaml:"notification"`
}

type AppConfig struct {
	Env         string  `yaml:"env"`
	LogLevel    string  `yaml:"log_level"`
	TimeZone    string  `yaml:"time_zone"`
	SampleRatio float64 `yaml:"trace_sample_ratio"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addrs     string `yaml:"addrs"`
	KeyPrefix string `yaml:"key_prefix"`
}

type KafkaConfig struct {
	Brokers           string `yaml:"brokers"`
	NotificationTopic string `yaml:"notification_topic"`
	RetryTopic        string `yaml:"retry_topic"`
	DLTTopic          string `yaml:"dlt_topic"`
	ConsumerGroup     string `yaml:"consumer_group"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ZookeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type AuthConfig struct {
	SigningKey      string        `yaml:"signing_key"`
	AccessTTL       time.Duration `yaml:"access_ttl"`
	RefreshTTL      time.Duration `yaml:"refresh_ttl"`
	MaxFailedLogins int           `yaml:"max_failed_logins"`
}

// FraudConfig 是欺诈规则的阈值，替代硬编码常量。
type FraudConfig struct {
	VelocityLimit   int                `yaml:"velocity_limit"`
	VelocityWindow  time.Duration      `yaml:"velocity_window"`
	AmountThreshold string             `yaml:"amount_threshold"`
	DomainUserLimit int                `yaml:"domain_user_limit"`
	DomainCacheTTL  time.Duration      `yaml:"domain_cache_ttl"`
	CustomRules     []CustomRuleConfig `yaml:"custom_rules"`
}

type CustomRuleConfig struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Reason     string `yaml:"reason"`
}

type CacheConfig struct {
	ListTTL time.Duration `yaml:"list_ttl"`
}

type LockingConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	TTL     time.Duration `yaml:"ttl"`
}

type NotificationConfig struct {
	AdminEmails []string      `yaml:"admin_emails"`
	FromEmail   string        `yaml:"from_email"`
	SMTP        SMTPConfig    `yaml:"smtp"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

var currentConfig atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置快照。
func GetCurrentConfig() *Config {
	if c := currentConfig.Load(); c != nil {
		return c
	}
	c := &Config{}
	c.applyDefaults()
	return c
}

func SetCurrentConfig(c *Config) {
	currentConfig.Store(c)
}

// LoadConfigFile 读取 YAML 文件；文件不存在时只使用默认值和环境变量。
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig 解析 YAML 内容，并依次叠加环境变量和默认值。
func ParseConfig(data []byte) (*Config, error) {
	c := &Config{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, errors.Wrap(err, "parse config yaml")
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"MYSQL_DSN":         &c.Infra.MySQL.DSN,
		"REDIS_ADDRS":       &c.Infra.Redis.Addrs,
		"KAFKA_BROKERS":     &c.Infra.Kafka.Brokers,
		"JAEGER_ENDPOINT":   &c.Infra.Jaeger.Endpoint,
		"ZOOKEEPER_SERVERS": &c.Infra.Zookeeper.Servers,
		"JWT_SIGNING_KEY":   &c.Auth.SigningKey,
		"SMTP_HOST":         &c.Notification.SMTP.Host,
		"SMTP_USERNAME":     &c.Notification.SMTP.Username,
		"SMTP_PASSWORD":     &c.Notification.SMTP.Password,
		"LOG_LEVEL":         &c.App.LogLevel,
	}
	for env, field := range overrides {
		if v, ok := os.LookupEnv(env); ok {
			*field = v
		}
	}
	if v, ok := os.LookupEnv("ADMIN_EMAILS"); ok {
		c.Notification.AdminEmails = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	setString(&c.App.Env, "development")
	setString(&c.App.LogLevel, "info")
	setString(&c.App.TimeZone, "Africa/Lagos")
	if c.App.SampleRatio <= 0 {
		c.App.SampleRatio = 1
	}

	setString(&c.Infra.MySQL.DSN, "root:root@tcp(localhost:3306)/loan_be?charset=utf8mb4&parseTime=True&loc=UTC")
	setInt(&c.Infra.MySQL.MaxOpenConns, 20)
	setInt(&c.Infra.MySQL.MaxIdleConns, 5)
	setDuration(&c.Infra.MySQL.ConnMaxLifetime, time.Hour)
	setString(&c.Infra.Redis.Addrs, "localhost:6379")
	setString(&c.Infra.Redis.KeyPrefix, "loan_be")
	setString(&c.Infra.Kafka.Brokers, "localhost:9092")
	setString(&c.Infra.Kafka.NotificationTopic, "loan-fraud-notifications")
	setString(&c.Infra.Kafka.RetryTopic, c.Infra.Kafka.NotificationTopic+"-retry")
	setString(&c.Infra.Kafka.DLTTopic, c.Infra.Kafka.NotificationTopic+"-dlt")
	setString(&c.Infra.Kafka.ConsumerGroup, "notification-worker")
	setDuration(&c.Infra.Zookeeper.SessionTimeout, 10*time.Second)

	setString(&c.Auth.SigningKey, "change-me")
	setDuration(&c.Auth.AccessTTL, 120*time.Minute)
	setDuration(&c.Auth.RefreshTTL, 24*time.Hour)
	setInt(&c.Auth.MaxFailedLogins, 3)

	setInt(&c.Fraud.VelocityLimit, 3)
	setDuration(&c.Fraud.VelocityWindow, 24*time.Hour)
	setString(&c.Fraud.AmountThreshold, "5000000")
	setInt(&c.Fraud.DomainUserLimit, 10)
	setDuration(&c.Fraud.DomainCacheTTL, time.Hour)

	setDuration(&c.Cache.ListTTL, 300*time.Second)
	setDuration(&c.Locking.Timeout, 5*time.Second)
	setDuration(&c.Locking.TTL, 30*time.Second)

	if len(c.Notification.AdminEmails) == 0 {
		c.Notification.AdminEmails = []string{"admin@example.com"}
	}
	setString(&c.Notification.FromEmail, "noreply@loan-be.local")
	setString(&c.Notification.SMTP.Host, "localhost")
	setInt(&c.Notification.SMTP.Port, 1025)
	setInt(&c.Notification.MaxAttempts, 5)
	setDuration(&c.Notification.RetryDelay, 10*time.Second)
}

// Location 返回业务时区，找不到时区数据库时退回到 WAT (UTC+1)。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.TimeZone)
	if err != nil {
		return time.FixedZone("WAT", 60*60)
	}
	return loc
}

func (c *Config) KafkaBrokers() []string {
	return splitList(c.Infra.Kafka.Brokers)
}

func (c *Config) ZookeeperServers() []string {
	return splitList(c.Infra.Zookeeper.Servers)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p <= 0 {
		*p = v
	}
}

func setDuration(p *time.Duration, v time.Duration) {
	if *p <= 0 {
		*p = v
	}
}
