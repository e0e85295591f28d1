// Package cli implements the posdesk operator commands.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/posdesk/internal/app"
)

// env is the state shared by every command once configuration is loaded.
type env struct {
	cfg     *app.Config
	logger  *slog.Logger
	verbose bool
}

// NewRootCommand builds the posdesk command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "posdesk",
		Short:         "POS print and export gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if e.verbose {
				cfg.LogLevel = "debug"
				cfg.APIVerbose = true
			}
			e.cfg = cfg
			e.logger = app.NewLogger(cfg)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "log backend requests and debug output")

	root.AddCommand(
		newServeCommand(e),
		newExportCommand(e),
		newPDFCommand(e),
		newPrintCommand(e),
		newQRCommand(e),
		newJobsCommand(e),
	)
	return root
}
