package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/scanvault/internal/client/api"
	"github.com/dmitrijs2005/scanvault/internal/client/config"
	"github.com/dmitrijs2005/scanvault/internal/client/library"
	"github.com/dmitrijs2005/scanvault/internal/client/outbox"
	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/filex"
	"github.com/dmitrijs2005/scanvault/internal/logging"

	_ "modernc.org/sqlite"
)

// App is what a single command invocation works with.
type App struct {
	cfg    *config.Config
	api    *api.Client
	outbox *outbox.Outbox
	lib    *library.Library
	logger logging.Logger
	out    io.Writer
}

// NewApp opens the outbox and the library described by cfg. Entries that
// were saved but never queued are re-queued on the way.
func NewApp(ctx context.Context, cfg *config.Config, out io.Writer, logger logging.Logger) (*App, error) {
	client := api.New(cfg.ServerURL, nil)

	ob, err := outbox.Open(cfg.OutboxDir, client, logger)
	if err != nil {
		return nil, fmt.Errorf("opening outbox: %w", err)
	}
	n, err := ob.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovering outbox: %w", err)
	}
	if n > 0 {
		logger.Info(ctx, "re-queued unfinished captures", "count", n)
	}

	if _, err := filex.EnsureDir(filepath.Dir(cfg.LibraryPath)); err != nil {
		return nil, err
	}
	lib, err := library.Open(ctx, cfg.LibraryPath)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}

	return &App{cfg: cfg, api: client, outbox: ob, lib: lib, logger: logger, out: out}, nil
}

func (a *App) Close() error {
	return a.lib.Close()
}

func (a *App) token() (string, error) {
	b, err := os.ReadFile(a.cfg.TokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: run \"scanvault login\" first", common.ErrUnauthenticated)
	}
	if err != nil {
		return "", err
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", fmt.Errorf("%w: saved token is empty", common.ErrUnauthenticated)
	}
	return tok, nil
}

func (a *App) saveToken(tok string) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return fmt.Errorf("%w: token is empty", common.ErrValidation)
	}
	if _, err := filex.EnsureDir(filepath.Dir(a.cfg.TokenPath)); err != nil {
		return err
	}
	return filex.WriteFileAtomic(a.cfg.TokenPath, []byte(tok+"\n"), 0o600)
}

func (a *App) forgetToken() error {
	err := os.Remove(a.cfg.TokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// resolveFileID accepts either an outbox localId or a server file id.
func (a *App) resolveFileID(id string) (string, error) {
	m, err := a.outbox.Get(id)
	switch {
	case err == nil:
		if m.ServerFileID == "" {
			return "", fmt.Errorf("%s has not been uploaded yet", id)
		}
		return m.ServerFileID, nil
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrValidation):
		return id, nil
	default:
		return "", err
	}
}
