package cli

import (
	"fmt"
	"log/slog"

	"github.com/dmitrijs2005/scanvault/internal/client/config"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	verbose    bool
}

func (o *options) path() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultPath()
}

func (o *options) loadConfig() (*config.Config, string, error) {
	path, err := o.path()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

type appFunc func(cmd *cobra.Command, a *App, args []string) error

// withApp builds an App for the duration of one command.
func (o *options) withApp(fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, _, err := o.loadConfig()
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if o.verbose {
			level = slog.LevelDebug
		}
		logger := logging.NewTextLogger(cmd.ErrOrStderr(), level)

		a, err := NewApp(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		return fn(cmd, a, args)
	}
}

// NewRootCmd assembles the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "scanvault",
		Short:         "Capture notes and scans offline, upload them when you are online",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $"+config.ConfigEnvVar+" or ~/"+config.DirName+"/"+config.FileName+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newConfigCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newCaptureCmd(opts),
		newDrainCmd(opts),
		newListCmd(opts),
		newStatusCmd(opts),
		newRetryCmd(opts),
		newRefreshCmd(opts),
		newSearchCmd(opts),
		newDeleteCmd(opts),
		newPruneCmd(opts),
	)
	return root
}
