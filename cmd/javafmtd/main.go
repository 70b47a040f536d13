package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"javafmtd/internal/config"
	"javafmtd/internal/server"
	"javafmtd/internal/state/paths"
)

var version = "dev"

var (
	v       = config.New()
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "javafmtd",
		Short:         "Editor host for the spring-javaformat format service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the editor API and keep the format service alive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	formatCmd = &cobra.Command{
		Use:   "format [--write|--check] <files...>",
		Short: "Format Java and markdown files through the format service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			write, _ := cmd.Flags().GetBool("write")
			check, _ := cmd.Flags().GetBool("check")
			return runFormat(cmd.Context(), cfg, args, formatFlags{write: write, check: check}, cmd.OutOrStdout())
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the status reported by a running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
)

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (default <state dir>/config.yaml)")
	rootCmd.PersistentFlags().String("listen", "127.0.0.1:7312", "address of the editor API")
	rootCmd.PersistentFlags().String("state-dir", "", "directory for the launch journal and runtime jars")
	rootCmd.PersistentFlags().String("backend", config.BackendService, `formatter backend, "service" or "oneshot"`)
	rootCmd.PersistentFlags().String("jar", "", "path to the format service jar")
	rootCmd.PersistentFlags().Bool("api-validate", false, "validate API requests against the OpenAPI document")

	bindings := map[string]string{
		"listen":            "listen",
		"state_dir":         "state-dir",
		"formatter.backend": "backend",
		"service.jar":       "jar",
		"api_validate":      "api-validate",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	formatCmd.Flags().BoolP("write", "w", false, "write results back to the files instead of stdout")
	formatCmd.Flags().Bool("check", false, "exit with status 1 when any file is not formatted")

	rootCmd.AddCommand(serveCmd, formatCmd, statusCmd, configCmd)
}

func loadConfig() (config.Config, error) {
	dir := v.GetString("state_dir")
	if dir == "" {
		dir = paths.Root()
	}
	if err := config.ReadFile(v, cfgFile, dir); err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

func serve(ctx context.Context, cfg config.Config) error {
	rt, err := server.NewRuntime(cfg, server.RuntimeDeps{})
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	srv, err := server.NewGinServer(rt, server.WithGinVersion(version))
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Printf("INFO: Shutting down javafmtd")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.msg)
			os.Exit(exitErr.code)
		}
		log.Fatalf("FATAL: %v", err)
	}
}
