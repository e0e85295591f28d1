package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/posdesk/internal/app"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/screen"
	"github.com/odyssey-erp/posdesk/internal/spool"
	"github.com/odyssey-erp/posdesk/jobs"
)

type printFlags struct {
	layout string
	queue  bool
}

func (p *printFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.layout, "layout", "", "a4, 80mm or 58mm (defaults per document)")
	cmd.Flags().BoolVar(&p.queue, "queue", false, "hand the document to the print worker instead of printing here")
}

func (p *printFlags) parsedLayout() (printdoc.Layout, error) {
	if p.layout == "" {
		return "", nil
	}
	return printdoc.ParseLayout(p.layout)
}

func newPrintCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print reports, invoices and receipts",
	}
	cmd.AddCommand(newPrintReportCommand(e), newPrintInvoiceCommand(e), newPrintReceiptCommand(e))
	return cmd
}

func newPrintReportCommand(e *env) *cobra.Command {
	var (
		flags filterFlags
		pf    printFlags
	)
	cmd := &cobra.Command{
		Use:   "report <name>",
		Short: "Print a report table or day summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := pf.parsedLayout()
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), e, func(ctx context.Context, s *app.Services) error {
				def, err := s.Catalog.Get(args[0])
				if err != nil {
					return err
				}
				store, err := s.Store.Get(ctx)
				if err != nil {
					return err
				}
				doc, _, err := s.Screen.Document(ctx, s.Builder, store.Store(), def, flags.filter(), layout)
				if err != nil {
					return err
				}
				return submit(ctx, cmd, e, s, pf.queue, doc, "report:"+def.Name)
			})
		},
	}
	flags.bind(cmd)
	pf.bind(cmd)
	return cmd
}

func newPrintInvoiceCommand(e *env) *cobra.Command {
	var pf printFlags
	cmd := &cobra.Command{
		Use:   "invoice <id>",
		Short: "Print a tax invoice, or a receipt on a roll layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := pf.parsedLayout()
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), e, func(ctx context.Context, s *app.Services) error {
				raw, err := screen.LoadInvoice(ctx, s.API, args[0])
				if err != nil {
					return err
				}
				store, err := s.Store.Get(ctx)
				if err != nil {
					return err
				}
				doc, err := screen.InvoiceDocument(s.Builder, store.Store(), raw, layout, s.Formatter.Location)
				if err != nil {
					return err
				}
				return submit(ctx, cmd, e, s, pf.queue, doc, "invoice:"+args[0])
			})
		},
	}
	pf.bind(cmd)
	return cmd
}

func newPrintReceiptCommand(e *env) *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "receipt <id>",
		Short: "Print an invoice receipt on the ESC/POS printer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), e, func(ctx context.Context, s *app.Services) error {
				if s.Receipts == nil {
					return errors.New("no thermal printer configured (ESCPOS_PRINTER_PATH)")
				}
				raw, err := screen.LoadInvoice(ctx, s.API, args[0])
				if err != nil {
					return err
				}
				profile, err := s.Store.Get(ctx)
				if err != nil {
					return err
				}
				store := profile.Store()
				loc := s.Formatter.Location
				payload := printdoc.NormalizeReceipt(store, raw, loc)
				if len(payload.Items) == 0 {
					return printdoc.ErrNoItems
				}
				qr, err := printdoc.FiscalPayload(store, printdoc.NormalizeInvoice(raw, loc))
				if err != nil {
					e.logger.Warn("receipt printed without fiscal qr", slog.Any("error", err))
					qr = ""
				}
				return s.Receipts.PrintLines(spool.ReceiptLines(payload, s.Formatter.Money, width, qr))
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", printdoc.Thermal80.Columns(), "characters per line")
	return cmd
}

func withServices(ctx context.Context, e *env, fn func(context.Context, *app.Services) error) error {
	s, err := app.NewServices(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			e.logger.Warn("close services", slog.Any("error", err))
		}
	}()
	return fn(ctx, s)
}

type printQueue interface {
	EnqueuePrint(ctx context.Context, payload jobs.PrintPayload) (*asynq.TaskInfo, error)
}

// submit prints doc here and waits for the job, or enqueues it.
func submit(ctx context.Context, cmd *cobra.Command, e *env, s *app.Services, queue bool, doc printdoc.Document, source string) error {
	if queue {
		var q printQueue = s.Queue
		if s.Queue == nil {
			jc, err := NewJobsCLI(e.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer jc.Close()
			q = jc
		}
		info, err := q.EnqueuePrint(ctx, jobs.PrintPayload{Document: doc, Source: source})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s on %s\n", info.ID, info.Queue)
		return nil
	}

	job, err := s.Driver.Print(ctx, doc)
	if err != nil {
		return err
	}
	if err := job.Wait(ctx); err != nil {
		job.Dispose()
		return err
	}
	if job.Reason() != spool.ReasonPrinted {
		if job.Err() != nil {
			return fmt.Errorf("print %s: %w", job.Reason(), job.Err())
		}
		return fmt.Errorf("print %s", job.Reason())
	}
	e.logger.Info("printed", slog.String("job_id", job.ID), slog.String("output", job.Output()))
	fmt.Fprintln(cmd.OutOrStdout(), job.Output())
	return nil
}
