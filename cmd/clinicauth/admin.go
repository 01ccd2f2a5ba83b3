package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/store/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return errors.New("migrate requires storage.driver=postgres")
			}

			st, err := postgres.Open(cmd.Context(), cfg.Storage.DSN, postgres.Options{MaxConns: 2}, log)
			if err != nil {
				return err
			}
			defer st.Close()

			applied, err := st.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", v)
			}
			return nil
		},
	}
}

func newSeedRolesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-roles",
		Short: "Insert the five system roles when the role table is empty",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return errors.New("seed-roles requires storage.driver=postgres")
			}
			engCfg, err := cfg.EngineConfig()
			if err != nil {
				return err
			}

			st, err := postgres.Open(cmd.Context(), cfg.Storage.DSN, postgres.Options{MaxConns: 2}, log)
			if err != nil {
				return err
			}
			defer st.Close()

			engine, err := clinicauth.New().WithConfig(engCfg).WithUserStore(st).WithRoleStore(st).WithLogger(log).Build()
			if err != nil {
				return err
			}
			defer engine.Close()

			seeded, err := engine.SeedSystemRoles(cmd.Context())
			if err != nil {
				return err
			}
			if seeded {
				fmt.Fprintln(cmd.OutOrStdout(), "system roles created")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "system roles already present")
			}
			return nil
		},
	}
}

// newHashPasswordCmd prints an argon2id hash, for bootstrapping the first
// super admin directly in the database.
func newHashPasswordCmd(g *globalFlags) *cobra.Command {
	var skipPolicy bool
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the argon2id hash of a password (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain := ""
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				plain = strings.TrimRight(line, "\r\n")
			}

			cfg := clinicauth.DefaultConfig()
			if !skipPolicy {
				if ok, reasons := cfg.Password.Policy.Validate(plain); !ok {
					return fmt.Errorf("password rejected: %s", strings.Join(password.Describe(cfg.Password.Policy, reasons), "; "))
				}
			}

			hasher, err := password.NewArgon2(cfg.Password.Hash)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "hash without checking the strength policy")
	return cmd
}
