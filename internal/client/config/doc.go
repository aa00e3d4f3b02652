// Package config loads runtime configuration for the outbox CLI.
//
// Sources & precedence
//
//  1. Built-in defaults rooted at ~/.scanvault (see Defaults).
//  2. Optional TOML file, by default ~/.scanvault/config.toml.
//  3. Command-line flags applied by the cli package.
//
// # TOML schema
//
// Durations are strings such as "5s":
//
//	server_url = "http://127.0.0.1:8080"
//	outbox_dir = "/home/me/.scanvault/outbox"
//	library_path = "/home/me/.scanvault/library.db"
//	token_path = "/home/me/.scanvault/token"
//	drain_interval = "5s"
//
//	[poll]
//	max_attempts = 20
//	interval = "3s"
//
// A missing file is not an error; the defaults are used as-is.
package config
