// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// MemoryDSN selects the in-process document store instead of PostgreSQL.
const MemoryDSN = "memory"

// Config holds runtime settings for the TripKeeper server.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the public gRPC endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx), or MemoryDSN.
//   - SecretKey: HMAC secret for verifying JWTs (HS256). Do not use test defaults in prod.
//   - LogLevel: debug, info, warn or error.
//   - S3*: object storage holding trip photos. An empty bucket disables photo signals.
//   - *Schedule: cron specs of the three sweeps.
//   - The remaining fields tune the sweeps and the job retry policy.
type Config struct {
	EndpointAddrGRPC  string
	DatabaseDSN       string
	SecretKey         string
	LogLevel          string
	S3RootUser        string
	S3RootPassword    string
	S3Bucket          string
	S3Region          string
	S3BaseEndpoint    string
	DueJobsSchedule   string
	PurgeSchedule     string
	ReconcileSchedule string
	DueBatchSize      int
	PurgePageSize     int
	ReconcilePageSize int
	TrashRetention    time.Duration
	JobMaxAttempts    int
	JobRetryDelay     time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = MemoryDSN
	c.SecretKey = "secretKey"
	c.LogLevel = "info"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.DueJobsSchedule = "@every 5m"
	c.PurgeSchedule = "CRON_TZ=Asia/Seoul 0 3 * * *"
	c.ReconcileSchedule = "CRON_TZ=UTC 0 1 * * *"
	c.DueBatchSize = 20
	c.PurgePageSize = 500
	c.ReconcilePageSize = 100
	c.TrashRetention = 30 * 24 * time.Hour
	c.JobMaxAttempts = 3
	c.JobRetryDelay = 5 * time.Minute
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
