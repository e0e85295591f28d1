package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/posdesk/internal/app"
	"github.com/odyssey-erp/posdesk/internal/platform/files"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/printdoc/fiscalqr"
	"github.com/odyssey-erp/posdesk/internal/screen"
)

func newQRCommand(e *env) *cobra.Command {
	var (
		size   int
		outDir string
		decode bool
	)
	cmd := &cobra.Command{
		Use:   "qr <invoice-id | payload>",
		Short: "Write an invoice's fiscal QR code as PNG, or decode a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if decode {
				f, err := fiscalqr.Decode(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seller=%s\ntrn=%s\ntimestamp=%s\ntotal=%s\nvat=%s\n",
					f.SellerName, f.TRN, f.Timestamp, f.Total, f.VAT)
				return nil
			}
			return withServices(cmd.Context(), e, func(ctx context.Context, s *app.Services) error {
				raw, err := screen.LoadInvoice(ctx, s.API, args[0])
				if err != nil {
					return err
				}
				profile, err := s.Store.Get(ctx)
				if err != nil {
					return err
				}
				payload, err := printdoc.FiscalPayload(profile.Store(), printdoc.NormalizeInvoice(raw, s.Formatter.Location))
				if err != nil {
					return err
				}
				png, err := fiscalqr.PNG(payload, size)
				if err != nil {
					return err
				}
				if outDir == "" {
					outDir = e.cfg.DownloadDir
				}
				path, err := files.WriteAtomic(outDir, files.SafeName("QR-"+args[0]+".png"), bytes.NewReader(png))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), payload)
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 256, "image size in pixels")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (defaults to DOWNLOAD_DIR)")
	cmd.Flags().BoolVar(&decode, "decode", false, "treat the argument as a base64 payload and print its fields")
	return cmd
}
