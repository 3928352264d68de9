package config

import "time"

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "myuser",
	Pass: "mypassword",
	Name: "test_db",
}

var defaultKafka = Kafka{
	GroupID:            "courier-dispatch",
	OrdersTopic:        "orders.events",
	NotificationsTopic: "dispatch.notifications",
}

var defaultDispatch = Dispatch{
	BroadcastTTL:     30 * time.Second,
	FanoutWidth:      5,
	StackingLimit:    3,
	AcceptTimeout:    30 * time.Second,
	SweepInterval:    5 * time.Second,
	SweepBatchSize:   100,
	OperationTimeout: 3 * time.Second,
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       10,
	Burst:      20,
	TTL:        5 * time.Minute,
	MaxBuckets: 10000,
}

var defaultTracing = Tracing{
	Endpoint:    "localhost:4318",
	ServiceName: "courier-dispatch",
	Environment: "development",
	SampleRate:  1,
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultStore returns the default storage backend.
func DefaultStore() string {
	return StorePostgres
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}

// DefaultKafka returns the default Kafka settings without brokers.
func DefaultKafka() Kafka {
	return defaultKafka
}

// DefaultDispatch returns the default dispatch policy.
func DefaultDispatch() Dispatch {
	return defaultDispatch
}

// DefaultRateLimit returns the default rate limit settings.
func DefaultRateLimit() RateLimit {
	return defaultRateLimit
}

// DefaultTracing returns the default tracing settings, disabled.
func DefaultTracing() Tracing {
	return defaultTracing
}
