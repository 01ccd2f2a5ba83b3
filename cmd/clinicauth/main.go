// Command clinicauth runs and administers the clinic authentication service.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/MrEthical07/clinicauth/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "clinicauth",
		Short:         "Clinic authentication and RBAC service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(g.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("CLINICAUTH_CONFIG"), "YAML config file (env CLINICAUTH_CONFIG)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config; missing files are ignored")

	root.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newSeedRolesCmd(g),
		newHashPasswordCmd(g),
		newSecurityReportCmd(g),
		newLoadtestCmd(),
	)
	return root
}

// loadEnvFile never overrides variables already set in the environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (g *globalFlags) load() (*server.Config, *zap.Logger, error) {
	cfg, err := server.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := server.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}
