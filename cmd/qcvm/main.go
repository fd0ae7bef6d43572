// qcvm runs and inspects compiled QuakeC program images.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/xirelogy/go-qcvm/internal/config"
)

var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	verbosity int
	cfg       *config.Config
)

var log = commonlog.GetLogger("qcvm.cli")

func main() {
	rootCmd := &cobra.Command{
		Use:   "qcvm",
		Short: "QuakeC virtual machine tools",
		Long: `Runs, profiles and disassembles compiled QuakeC program images, and
exercises the level completion report end to end.`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.FindAndLoad(configDir)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("verbose") {
				verbosity = cfg.Log.Verbosity
			}
			commonlog.Configure(verbosity, cfg.LogFile())
			log.Debugf("configuration loaded from %q", cfg.Dir)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "C", ".", "directory to search for qcvm.toml")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity")

	rootCmd.AddCommand(
		newDisasmCmd(),
		newRunCmd(),
		newProfileCmd(),
		newDemoCmd(),
		newStatsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qcvm: %v\n", err)
		os.Exit(1)
	}
}
