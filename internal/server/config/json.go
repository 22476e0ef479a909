package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// JsonConfig is the shape of the JSON configuration file. Durations use
// timex.Duration, so both "5m" and integer nanoseconds are accepted.
// Absent fields leave the current value alone.
type JsonConfig struct {
	EndpointAddrGRPC  string         `json:"endpoint_addr_grpc"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	LogLevel          string         `json:"log_level"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	DueJobsSchedule   string         `json:"due_jobs_schedule"`
	PurgeSchedule     string         `json:"purge_schedule"`
	ReconcileSchedule string         `json:"reconcile_schedule"`
	DueBatchSize      int            `json:"due_batch_size"`
	PurgePageSize     int            `json:"purge_page_size"`
	ReconcilePageSize int            `json:"reconcile_page_size"`
	TrashRetention    timex.Duration `json:"trash_retention"`
	JobMaxAttempts    int            `json:"job_max_attempts"`
	JobRetryDelay     timex.Duration `json:"job_retry_delay"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config flag into config. Without either flag nothing is loaded.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.DueJobsSchedule, c.DueJobsSchedule)
	setString(&config.PurgeSchedule, c.PurgeSchedule)
	setString(&config.ReconcileSchedule, c.ReconcileSchedule)
	setInt(&config.DueBatchSize, c.DueBatchSize)
	setInt(&config.PurgePageSize, c.PurgePageSize)
	setInt(&config.ReconcilePageSize, c.ReconcilePageSize)
	setInt(&config.JobMaxAttempts, c.JobMaxAttempts)
	if c.TrashRetention.Duration != 0 {
		config.TrashRetention = c.TrashRetention.Duration
	}
	if c.JobRetryDelay.Duration != 0 {
		config.JobRetryDelay = c.JobRetryDelay.Duration
	}
}
