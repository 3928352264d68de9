package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config stores service and worker settings.
type Config struct {
	Port      int
	Store     string
	LogLevel  string
	DB        DB
	Kafka     Kafka
	Redis     Redis
	Dispatch  Dispatch
	RateLimit RateLimit
	Tracing   Tracing
}

// DB stores Postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN returns the pgx connection string.
func (d DB) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Pass),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Kafka stores broker settings. Empty Brokers disables Kafka.
type Kafka struct {
	Brokers            []string
	GroupID            string
	OrdersTopic        string
	NotificationsTopic string
}

// Redis stores the realtime channel settings. Empty Addr disables it.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Dispatch stores dispatch policy.
type Dispatch struct {
	BroadcastTTL          time.Duration
	FanoutWidth           int
	StackingLimit         int
	AcceptTimeout         time.Duration
	SweepInterval         time.Duration
	SweepBatchSize        int
	MaxRedispatchAttempts int // 0 = unlimited
	OperationTimeout      time.Duration
}

// RateLimit stores per-client HTTP rate limiting settings.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Tracing stores the OTLP exporter settings.
type Tracing struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
	SampleRate  float64
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with explicit command-line arguments.
func LoadArgs(args []string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet("courier-dispatch", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "storage backend: postgres or memory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	e := &envReader{}
	cfg := &Config{
		Port:     e.getInt("PORT", DefaultPort()),
		Store:    e.getString("STORE", DefaultStore()),
		LogLevel: e.getString("LOG_LEVEL", "info"),
	}

	db := DefaultDB()
	cfg.DB = DB{
		Host: e.getString("POSTGRES_HOST", db.Host),
		Port: e.getString("POSTGRES_PORT", db.Port),
		User: e.getString("POSTGRES_USER", db.User),
		Pass: e.getString("POSTGRES_PASSWORD", db.Pass),
		Name: e.getString("POSTGRES_DB", db.Name),
	}
	if _, err := strconv.Atoi(cfg.DB.Port); err != nil {
		e.fail("POSTGRES_PORT", err)
	}

	k := DefaultKafka()
	cfg.Kafka = Kafka{
		Brokers:            e.getList("KAFKA_BROKERS", k.Brokers),
		GroupID:            e.getString("KAFKA_GROUP_ID", k.GroupID),
		OrdersTopic:        e.getString("KAFKA_ORDERS_TOPIC", k.OrdersTopic),
		NotificationsTopic: e.getString("KAFKA_NOTIFICATIONS_TOPIC", k.NotificationsTopic),
	}

	cfg.Redis = Redis{
		Addr:     e.getString("REDIS_ADDR", ""),
		Password: e.getString("REDIS_PASSWORD", ""),
		DB:       e.getInt("REDIS_DB", 0),
	}

	d := DefaultDispatch()
	cfg.Dispatch = Dispatch{
		BroadcastTTL:          e.getDuration("DISPATCH_BROADCAST_TTL", d.BroadcastTTL),
		FanoutWidth:           e.getInt("DISPATCH_FANOUT_WIDTH", d.FanoutWidth),
		StackingLimit:         e.getInt("DISPATCH_STACKING_LIMIT", d.StackingLimit),
		AcceptTimeout:         e.getDuration("DISPATCH_ACCEPT_TIMEOUT", d.AcceptTimeout),
		SweepInterval:         e.getDuration("DISPATCH_SWEEP_INTERVAL", d.SweepInterval),
		SweepBatchSize:        e.getInt("DISPATCH_SWEEP_BATCH_SIZE", d.SweepBatchSize),
		MaxRedispatchAttempts: e.getInt("DISPATCH_MAX_REDISPATCH_ATTEMPTS", d.MaxRedispatchAttempts),
		OperationTimeout:      e.getDuration("DISPATCH_OPERATION_TIMEOUT", d.OperationTimeout),
	}

	rl := DefaultRateLimit()
	cfg.RateLimit = RateLimit{
		Enabled:    e.getBool("RATE_LIMIT_ENABLED", rl.Enabled),
		Rate:       e.getFloat("RATE_LIMIT_RATE", rl.Rate),
		Burst:      e.getInt("RATE_LIMIT_BURST", rl.Burst),
		TTL:        e.getDuration("RATE_LIMIT_TTL", rl.TTL),
		MaxBuckets: e.getInt("RATE_LIMIT_MAX_BUCKETS", rl.MaxBuckets),
	}

	tr := DefaultTracing()
	cfg.Tracing = Tracing{
		Enabled:     e.getBool("OTEL_ENABLED", tr.Enabled),
		Endpoint:    e.getString("OTEL_EXPORTER_OTLP_ENDPOINT", tr.Endpoint),
		ServiceName: e.getString("OTEL_SERVICE_NAME", tr.ServiceName),
		Environment: e.getString("OTEL_ENVIRONMENT", tr.Environment),
		SampleRate:  e.getFloat("OTEL_SAMPLE_RATE", tr.SampleRate),
	}

	if err := e.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Port))
	}
	if c.Store != StorePostgres && c.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("invalid store: %q", c.Store))
	}
	d := c.Dispatch
	if d.BroadcastTTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid broadcast ttl: %s", d.BroadcastTTL))
	}
	if d.FanoutWidth <= 0 {
		errs = append(errs, fmt.Errorf("invalid fanout width: %d", d.FanoutWidth))
	}
	if d.StackingLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid stacking limit: %d", d.StackingLimit))
	}
	if d.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid sweep interval: %s", d.SweepInterval))
	}
	if d.MaxRedispatchAttempts < 0 {
		errs = append(errs, fmt.Errorf("invalid max redispatch attempts: %d", d.MaxRedispatchAttempts))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid trace sample rate: %v", c.Tracing.SampleRate))
	}
	return errors.Join(errs...)
}

// envReader collects parse errors so every bad variable is reported at once.
type envReader struct {
	errs []error
}

func (e *envReader) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (e *envReader) err() error { return errors.Join(e.errs...) }

func (e *envReader) getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

func (e *envReader) getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *envReader) getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
