package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/scanvault/internal/flagx"
)

// parseFlags applies the short command-line flags:
//
//	-a string   HTTP bind address (":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT secret
//	-w string   worker shared secret
//	-b string   S3 bucket
//	-e string   S3 base endpoint
//	-i string   inference base URL
//	-n int      worker batch size
//	-r string   Redis address for the run lease
//	-l string   log level
//	-t duration in-process schedule interval (0 disables)
//
// Arguments meant for other layers (for example -c) are filtered out first.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-w", "-b", "-e", "-i", "-n", "-r", "-l", "-t"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "jwt secret")
	fs.StringVar(&config.WorkerSecret, "w", config.WorkerSecret, "worker shared secret")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.InferenceBaseURL, "i", config.InferenceBaseURL, "inference API base URL")
	fs.IntVar(&config.WorkerBatchSize, "n", config.WorkerBatchSize, "worker batch size")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.DurationVar(&config.ScheduleInterval, "t", config.ScheduleInterval, "in-process worker schedule interval")

	return fs.Parse(args)
}
