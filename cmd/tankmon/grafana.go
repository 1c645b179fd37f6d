package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/dashboard"
)

var (
	grafanaOut  string
	grafanaNode string
	grafanaRisk float64
)

var grafanaCmd = &cobra.Command{
	Use:   "grafana",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	Long:  "grafana renders the dashboard templates into --out. GREPTIMEDB_DATASOURCE_UID must be set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := dashboard.DefaultParams()
		if grafanaNode != "" {
			p.Node = grafanaNode
		}
		if grafanaRisk > 0 {
			p.RiskCM = grafanaRisk
		}
		if err := dashboard.Render(grafanaOut, p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dashboards written to %s\n", grafanaOut)
		return nil
	},
}

func init() {
	grafanaCmd.Flags().StringVar(&grafanaOut, "out", "build", "Output directory")
	grafanaCmd.Flags().StringVar(&grafanaNode, "node", "", "Receiving node whose rows the panels show")
	grafanaCmd.Flags().Float64Var(&grafanaRisk, "risk-cm", 0, "Distance drawn as the at-risk threshold")
}
