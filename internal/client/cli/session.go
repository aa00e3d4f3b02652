package cli

import (
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/scanvault/internal/client/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.path()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				if !force {
					return err
				}
				cfg = config.Defaults(filepath.Dir(path))
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an unreadable config with defaults")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := o.loadConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration from %s:\n\n", path)
			fmt.Fprintf(w, "Server:    %s\n", cfg.ServerURL)
			fmt.Fprintf(w, "Outbox:    %s\n", cfg.OutboxDir)
			fmt.Fprintf(w, "Library:   %s\n", cfg.LibraryPath)
			fmt.Fprintf(w, "Token:     %s\n", cfg.TokenPath)
			fmt.Fprintf(w, "Drain:     every %s\n", cfg.DrainInterval)
			fmt.Fprintf(w, "Poll:      %d attempts, %s apart\n", cfg.Poll.MaxAttempts, cfg.Poll.Interval)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func newLoginCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save the access token used for uploads",
		Args:  cobra.NoArgs,
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			tok, err := ReadToken(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := a.saveToken(tok); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Token saved")
			return nil
		}),
	}
}

func newLogoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved access token",
		Args:  cobra.NoArgs,
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			if err := a.forgetToken(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		}),
	}
}
