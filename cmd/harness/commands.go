package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/bootstrap"
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/config"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/server"
)

// flags override the environment
type flags struct {
	agent      int
	dev        bool
	logLevel   string
	appletPath string
	port       string
}

func newRootCmd(out io.Writer) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "harness",
		Short: "Bootstrap the forum applet against a local conductor",
		Long: `harness connects to the conductor's admin and app endpoints,
authorizes signing for every cell of the installed forum app and drives
the sensemaker neighbourhood lifecycle (create, join, resume).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().IntVar(&f.agent, "agent", 0, "agent index selecting the port pair (1 or 2, default from AGENT)")
	root.PersistentFlags().BoolVar(&f.dev, "dev", false, "development logging")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.appletPath, "applet-config", "", "applet configuration YAML overriding the embedded default")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the harness HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(f)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Run(cmd.Context())
		},
	}
	serveCmd.Flags().StringVar(&f.port, "port", "", "listen port (default from PORT)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Bootstrap once and print the session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), f, func(s *bootstrap.Session) error {
				return printJSON(cmd.OutOrStdout(), s.Status())
			})
		},
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create the sensemaker neighbourhood as its community activator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), f, func(s *bootstrap.Session) error {
				handle, err := s.Create(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), handle)
			})
		},
	}

	joinCmd := &cobra.Command{
		Use:   "join <activator-pub-key>",
		Short: "Join the neighbourhood created by the given agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), f, func(s *bootstrap.Session) error {
				handle, err := s.Join(cmd.Context(), args[0])
				if errors.Is(err, neighbourhood.ErrConfigurationNotYetVisible) {
					fmt.Fprintln(cmd.OutOrStdout(), "Joined, but the applet configuration is not visible yet; run status again later.")
					return printJSON(cmd.OutOrStdout(), s.Status().Neighbourhood)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), handle)
			})
		},
	}

	root.AddCommand(serveCmd, statusCmd, createCmd, joinCmd)
	return root
}

// load reads the environment and applies flag overrides
func load(f flags) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if f.agent != 0 {
		cfg.Conductor.Agent = f.agent
	}
	if f.dev {
		cfg.Logging.Development = true
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.appletPath != "" {
		cfg.Applet.ConfigPath = f.appletPath
	}
	if f.port != "" {
		cfg.Server.Port = f.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development), nil
}

func withSession(ctx context.Context, f flags, fn func(*bootstrap.Session) error) error {
	cfg, logger, err := load(f)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	s, err := bootstrap.Start(ctx, cfg, logger, monitoring.NewMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to close conductor connections", zap.Error(err))
		}
	}()
	return fn(s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
