package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/scanvault/internal/flagx"
	"github.com/dmitrijs2005/scanvault/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Only keys
// present in the file override the current values, hence the pointers.
type JsonConfig struct {
	HTTPAddr           *string         `json:"http_addr"`
	DatabaseDSN        *string         `json:"database_dsn"`
	LogLevel           *string         `json:"log_level"`
	JWTSecret          *string         `json:"jwt_secret"`
	WorkerSecret       *string         `json:"worker_secret"`
	S3RootUser         *string         `json:"s3_root_user"`
	S3RootPassword     *string         `json:"s3_root_password"`
	S3Bucket           *string         `json:"s3_bucket"`
	S3Region           *string         `json:"s3_region"`
	S3BaseEndpoint     *string         `json:"s3_base_endpoint"`
	S3PublicBaseURL    *string         `json:"s3_public_base_url"`
	PresignTTL         *timex.Duration `json:"presign_ttl"`
	InferenceBaseURL   *string         `json:"inference_base_url"`
	InferenceAPIKey    *string         `json:"inference_api_key"`
	VisionModel        *string         `json:"vision_model"`
	TranscriptionModel *string         `json:"transcription_model"`
	FFmpegPath         *string         `json:"ffmpeg_path"`
	FFprobePath        *string         `json:"ffprobe_path"`
	WorkerBatchSize    *int            `json:"worker_batch_size"`
	WorkerMaxAttempts  *int            `json:"worker_max_attempts"`
	ChunkThreshold     *timex.Duration `json:"chunk_threshold"`
	ChunkStagger       *timex.Duration `json:"chunk_stagger"`
	WorkerStaleAfter   *timex.Duration `json:"worker_stale_after"`
	ScheduleInterval   *timex.Duration `json:"schedule_interval"`
	RedisAddr          *string         `json:"redis_addr"`
	RedisPassword      *string         `json:"redis_password"`
	LeaseTTL           *timex.Duration `json:"lease_ttl"`
	DefaultTokenLimit  *int64          `json:"default_token_limit"`
}

// parseJson loads the file named by -c / -config (or $SCANVAULT_CONFIG).
// No path means nothing to do.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.WorkerSecret, c.WorkerSecret)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	setString(&config.InferenceBaseURL, c.InferenceBaseURL)
	setString(&config.InferenceAPIKey, c.InferenceAPIKey)
	setString(&config.VisionModel, c.VisionModel)
	setString(&config.TranscriptionModel, c.TranscriptionModel)
	setString(&config.FFmpegPath, c.FFmpegPath)
	setString(&config.FFprobePath, c.FFprobePath)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)

	if c.PresignTTL != nil {
		config.PresignTTL = c.PresignTTL.Duration
	}
	if c.ChunkThreshold != nil {
		config.ChunkThreshold = c.ChunkThreshold.Duration
	}
	if c.ChunkStagger != nil {
		config.ChunkStagger = c.ChunkStagger.Duration
	}
	if c.WorkerStaleAfter != nil {
		config.WorkerStaleAfter = c.WorkerStaleAfter.Duration
	}
	if c.ScheduleInterval != nil {
		config.ScheduleInterval = c.ScheduleInterval.Duration
	}
	if c.LeaseTTL != nil {
		config.LeaseTTL = c.LeaseTTL.Duration
	}
	if c.WorkerBatchSize != nil {
		config.WorkerBatchSize = *c.WorkerBatchSize
	}
	if c.WorkerMaxAttempts != nil {
		config.WorkerMaxAttempts = *c.WorkerMaxAttempts
	}
	if c.DefaultTokenLimit != nil {
		config.DefaultTokenLimit = *c.DefaultTokenLimit
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
