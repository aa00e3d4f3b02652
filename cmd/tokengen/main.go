// Command tokengen prints a bearer token the server accepts, signed with the
// server's JWT secret. It reads the same config layers as the server, so
// -c, -s and SCANVAULT_* variables apply.
//
//	tokengen -u <user-id> [-ttl 720h]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/flagx"
	"github.com/dmitrijs2005/scanvault/internal/server/auth"
	"github.com/dmitrijs2005/scanvault/internal/server/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := run(os.Args[1:], cfg.JWTSecret, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(args []string, secret string, out io.Writer) error {
	var (
		userID string
		ttl    time.Duration
	)
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&userID, "u", "", "user id to put in the token")
	fs.DurationVar(&ttl, "ttl", 30*24*time.Hour, "token validity")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-u", "-ttl"})); err != nil {
		return err
	}

	if userID == "" {
		return errors.New("-u is required")
	}
	if ttl <= 0 {
		return errors.New("-ttl must be positive")
	}

	tok, err := auth.GenerateToken(userID, []byte(secret), ttl)
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
