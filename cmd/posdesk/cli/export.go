package cli

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/posdesk/internal/app"
	"github.com/odyssey-erp/posdesk/internal/download"
	"github.com/odyssey-erp/posdesk/internal/export"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

func newExportCommand(e *env) *cobra.Command {
	var (
		flags  filterFlags
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export <report>",
		Short: "Export a report to XLSX or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "xlsx" && format != "csv" {
				return fmt.Errorf("unsupported format %q", format)
			}
			services, err := app.NewServices(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer services.Close()

			def, err := services.Catalog.Get(args[0])
			if err != nil {
				return err
			}
			res, err := services.Screen.Fetch(cmd.Context(), def, flags.filter())
			if err != nil {
				return err
			}
			from, to := services.Screen.Range(res)
			var buf bytes.Buffer
			if format == "csv" {
				err = export.WriteCSV(&buf, services.Formatter, def.Columns, res.Rows, export.CSVOptions{
					Title: def.Title,
					Range: printdoc.RangeLabel(from, to),
				})
			} else {
				err = export.WriteXLSX(&buf, def.Title, services.Formatter, def.Columns, res.Rows)
			}
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = e.cfg.DownloadDir
			}
			name := export.Filename(def.File, from, to, res.Filter.GroupBy, format)
			path, err := download.Saver{Dir: outDir}.Save(name, &buf)
			if err != nil {
				return err
			}
			services.Metrics.ObserveExport(format)
			e.logger.Info("report exported", slog.String("report", def.Name), slog.Int("rows", len(res.Rows)), slog.String("path", path))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "xlsx", "xlsx or csv")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (defaults to DOWNLOAD_DIR)")
	return cmd
}
