package authd_config

import (
	"time"

	"github.com/NordCoder/authd/internal/obs"
	pg "github.com/NordCoder/authd/internal/repository/postgres"
	rds "github.com/NordCoder/authd/internal/repository/redis"
	"github.com/NordCoder/authd/internal/tokens"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		Version:     c.App.Version,
		Env:         c.App.Env,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (c *Config) AsLoggerConfig() *obs.LogConfig {
	return &obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverBolt     = "bolt"
)

type Store struct {
	Driver string `mapstructure:"driver"`
}

type Bolt struct {
	Path        string        `mapstructure:"path"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type Kafka struct {
	Enable       bool          `mapstructure:"enable"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type Auth struct {
	JWTSecret           string        `mapstructure:"jwt_secret"`
	Issuer              string        `mapstructure:"issuer"`
	AccessTTL           time.Duration `mapstructure:"access_ttl"`
	RefreshTTL          time.Duration `mapstructure:"refresh_ttl"`
	Leeway              time.Duration `mapstructure:"leeway"`
	StoreTimeout        time.Duration `mapstructure:"store_timeout"`
	RevokeFamilyOnReuse bool          `mapstructure:"revoke_family_on_reuse"`
	IssueRetryAttempts  int           `mapstructure:"issue_retry_attempts"`
	BcryptCost          int           `mapstructure:"bcrypt_cost"`
}

func (a *Auth) AsTokensConfig() tokens.Config {
	return tokens.Config{
		Secret:              []byte(a.JWTSecret),
		Issuer:              a.Issuer,
		AccessTTL:           a.AccessTTL,
		RefreshTTL:          a.RefreshTTL,
		Leeway:              a.Leeway,
		StoreTimeout:        a.StoreTimeout,
		RevokeFamilyOnReuse: a.RevokeFamilyOnReuse,
	}
}

type Config struct {
	App    App        `mapstructure:"app"`
	Server Server     `mapstructure:"server"`
	Store  Store      `mapstructure:"store"`
	DB     pg.Config  `mapstructure:"db"`
	Redis  rds.Config `mapstructure:"redis"`
	Bolt   Bolt       `mapstructure:"bolt"`
	Kafka  Kafka      `mapstructure:"kafka"`
	Outbox Outbox     `mapstructure:"outbox"`
	OTEL   OTEL       `mapstructure:"otel"`
	Log    Log        `mapstructure:"log"`
	Auth   Auth       `mapstructure:"auth"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
