package main

import (
	"github.com/MrEthical07/clinicauth/internal/security"
	"github.com/MrEthical07/clinicauth/internal/server"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSecurityReportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "security-report",
		Short: "Print the effective security posture of the configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.Load(g.configPath)
			if err != nil {
				return err
			}
			r, err := security.BuildReport(cfg)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(r); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
