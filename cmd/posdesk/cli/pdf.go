package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/posdesk/internal/app"
	"github.com/odyssey-erp/posdesk/internal/download"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/screen"
)

func newPDFCommand(e *env) *cobra.Command {
	var (
		flags   filterFlags
		invoice string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "pdf [report]",
		Short: "Download a report or invoice PDF, falling back to printable HTML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (invoice == "") == (len(args) == 0) {
				return fmt.Errorf("pass either a report name or --invoice")
			}
			ctx := cmd.Context()
			services, err := app.NewServices(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer services.Close()

			var req download.Request
			if invoice != "" {
				req = invoiceRequest(services, invoice)
			} else {
				req, err = reportRequest(services, args[0], flags)
				if err != nil {
					return err
				}
			}
			if outDir == "" {
				outDir = e.cfg.DownloadDir
			}
			res, err := services.Downloads.Download(ctx, download.Saver{Dir: outDir}, req)
			if err != nil {
				return err
			}
			e.logger.Info("document saved", slog.String("path", res.Path), slog.Bool("fallback", res.Fallback))
			fmt.Fprintln(cmd.OutOrStdout(), res.Path)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice id")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (defaults to DOWNLOAD_DIR)")
	return cmd
}

func reportRequest(s *app.Services, name string, flags filterFlags) (download.Request, error) {
	def, err := s.Catalog.Get(name)
	if err != nil {
		return download.Request{}, err
	}
	f, err := screen.Prepare(def, flags.filter())
	if err != nil {
		return download.Request{}, err
	}
	from, to := s.Screen.Range(&screen.Result{Filter: f})
	ref := from
	if to != from {
		ref = from + "_" + to
	}
	return download.Request{
		Type:   def.File,
		Ref:    ref,
		Path:   def.PDF,
		Params: f.Params(),
		Fallback: func(ctx context.Context) (printdoc.Document, error) {
			store, err := s.Store.Get(ctx)
			if err != nil {
				return printdoc.Document{}, err
			}
			doc, _, err := s.Screen.Document(ctx, s.Builder, store.Store(), def, f, "")
			return doc, err
		},
	}, nil
}

func invoiceRequest(s *app.Services, id string) download.Request {
	return download.Request{
		Type: string(printdoc.KindInvoice),
		Ref:  id,
		Path: "/invoices/" + url.PathEscape(id) + "/pdf",
		Fallback: func(ctx context.Context) (printdoc.Document, error) {
			raw, err := screen.LoadInvoice(ctx, s.API, id)
			if err != nil {
				return printdoc.Document{}, err
			}
			store, err := s.Store.Get(ctx)
			if err != nil {
				return printdoc.Document{}, err
			}
			return screen.InvoiceDocument(s.Builder, store.Store(), raw, printdoc.A4, s.Formatter.Location)
		},
	}
}
