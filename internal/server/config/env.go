package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment key the server reads.
const EnvPrefix = "SCANVAULT_"

// dotenvFile is loaded when present; missing files are not an error.
var dotenvFile = ".env"

// parseEnv overlays SCANVAULT_* variables. A .env file in the working
// directory is loaded first; it never overrides variables already set.
func parseEnv(c *Config) error {
	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", dotenvFile, err)
	}

	strs := map[string]*string{
		"HTTP_ADDR":           &c.HTTPAddr,
		"DATABASE_DSN":        &c.DatabaseDSN,
		"LOG_LEVEL":           &c.LogLevel,
		"JWT_SECRET":          &c.JWTSecret,
		"WORKER_SECRET":       &c.WorkerSecret,
		"S3_ROOT_USER":        &c.S3RootUser,
		"S3_ROOT_PASSWORD":    &c.S3RootPassword,
		"S3_BUCKET":           &c.S3Bucket,
		"S3_REGION":           &c.S3Region,
		"S3_BASE_ENDPOINT":    &c.S3BaseEndpoint,
		"S3_PUBLIC_BASE_URL":  &c.S3PublicBaseURL,
		"INFERENCE_BASE_URL":  &c.InferenceBaseURL,
		"INFERENCE_API_KEY":   &c.InferenceAPIKey,
		"VISION_MODEL":        &c.VisionModel,
		"TRANSCRIPTION_MODEL": &c.TranscriptionModel,
		"FFMPEG_PATH":         &c.FFmpegPath,
		"FFPROBE_PATH":        &c.FFprobePath,
		"REDIS_ADDR":          &c.RedisAddr,
		"REDIS_PASSWORD":      &c.RedisPassword,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"PRESIGN_TTL":        &c.PresignTTL,
		"CHUNK_THRESHOLD":    &c.ChunkThreshold,
		"CHUNK_STAGGER":      &c.ChunkStagger,
		"WORKER_STALE_AFTER": &c.WorkerStaleAfter,
		"SCHEDULE_INTERVAL":  &c.ScheduleInterval,
		"LEASE_TTL":          &c.LeaseTTL,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(EnvPrefix + "WORKER_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKER_BATCH_SIZE: %w", EnvPrefix, err)
		}
		c.WorkerBatchSize = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "WORKER_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKER_MAX_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.WorkerMaxAttempts = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DEFAULT_TOKEN_LIMIT"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sDEFAULT_TOKEN_LIMIT: %w", EnvPrefix, err)
		}
		c.DefaultTokenLimit = n
	}

	return nil
}
