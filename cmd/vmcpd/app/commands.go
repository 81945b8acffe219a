// Package app provides the entry point for the vmcpd command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vmcpio/vmcpd/pkg/logger"
	"github.com/vmcpio/vmcpd/pkg/vmcp/config"
)

var rootCmd = &cobra.Command{
	Use:               "vmcpd",
	DisableAutoGenTag: true,
	Short:             "Virtual MCP Server - aggregate and proxy multiple MCP servers",
	Long: `vmcpd aggregates tools, resources, and prompts from many upstream MCP
servers, plus custom tools/resources/prompts of its own, behind a single
MCP endpoint per configured composition.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize(viper.GetBool("debug"))
	},
}

// NewRootCmd builds the root vmcpd command with its subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to vmcpd configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start vmcpd",
		Long: `Load the configuration file, connect every enabled upstream, and serve
each configured vMCP composition at /private/{vmcp_name}/vmcp.`,
		RunE: runServe,
	}
	cmd.Flags().String("listen", "", "override the configured listen address")
	if err := viper.BindPFlag("listen", cmd.Flags().Lookup("listen")); err != nil {
		logger.Errorf("binding listen flag: %v", err)
	}
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE:  runValidate,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("vmcpd version: %s", version)
		},
	}
}

// version is overridden at build time via -ldflags.
var version = "dev"

func runValidate(_ *cobra.Command, _ []string) error {
	configPath := viper.GetString("config")
	if configPath == "" {
		return fmt.Errorf("no configuration file specified, use --config")
	}

	logger.Infof("validating configuration: %s", configPath)
	cfg, err := config.NewYAMLLoader(configPath).Load()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	logger.Infof("configuration is valid")
	logger.Infof("  listen: %s", cfg.Listen)
	logger.Infof("  upstreams: %d", len(cfg.Upstreams))
	for _, vc := range cfg.VMCPs {
		logger.Infof("  vmcp %q: %d upstream(s), %d custom tool(s)", vc.Name, len(vc.Upstreams), len(vc.CustomTools))
	}
	return nil
}
