// Package download retrieves server-rendered PDFs and falls back to locally
// built HTML when the backend cannot produce one. The caller always gets an
// artifact unless the request itself was cancelled.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/platform/files"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// PDFSource fetches binary responses from the backend.
type PDFSource interface {
	GetBinary(ctx context.Context, path string, params any) (*apiclient.Binary, error)
}

// FallbackObserver counts HTML fallbacks.
type FallbackObserver interface {
	ObservePDFFallback()
}

// Request describes one artifact.
type Request struct {
	// Type is the file name prefix, such as "Invoice" or "XReport".
	Type string
	// Ref is the invoice ID or report date.
	Ref string
	// Path is the backend PDF endpoint.
	Path   string
	Params map[string]any
	// Fallback builds the equivalent HTML document.
	Fallback func(ctx context.Context) (printdoc.Document, error)
}

// Result is the produced artifact.
type Result struct {
	Name        string
	ContentType string
	Data        []byte
	Path        string
	Fallback    bool
	// Cause is why the PDF was not used. Nil when it was.
	Cause error
}

// Filename returns <Type>-<id-or-date>.<ext>.
func Filename(kind, ref, ext string) string {
	kind = strings.ReplaceAll(strings.TrimSpace(kind), " ", "")
	ref = strings.TrimSpace(ref)
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	name := kind
	if ref != "" {
		name += "-" + ref
	}
	return files.SafeName(name + "." + ext)
}

// Saver writes artifacts into a directory.
type Saver struct {
	Dir string
}

// Save writes r to name atomically. The temporary file never survives a failure.
func (s Saver) Save(name string, r io.Reader) (string, error) {
	return files.WriteAtomic(s.Dir, name, r)
}

// Service resolves artifacts.
type Service struct {
	source   PDFSource
	logger   *slog.Logger
	observer FallbackObserver
}

// NewService constructs a Service.
func NewService(source PDFSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// WithObserver attaches a fallback observer.
func (s *Service) WithObserver(o FallbackObserver) *Service {
	s.observer = o
	return s
}

// Fetch returns the PDF, or the fallback HTML when the PDF is unavailable.
func (s *Service) Fetch(ctx context.Context, req Request) (*Result, error) {
	var cause error
	if req.Path != "" && s.source != nil {
		bin, err := s.source.GetBinary(ctx, req.Path, req.Params)
		switch {
		case err == nil && isPDF(bin):
			return &Result{
				Name:        Filename(req.Type, req.Ref, "pdf"),
				ContentType: ContentTypePDF,
				Data:        bin.Data,
			}, nil
		case err == nil && len(bin.Data) == 0:
			cause = errors.New("download: empty pdf response")
		case err == nil:
			cause = fmt.Errorf("download: response is not a pdf (content type %q)", bin.ContentType)
		case apiclient.IsCanceled(err):
			return nil, err
		default:
			cause = err
		}
	} else {
		cause = errors.New("download: no pdf endpoint")
	}

	if apiclient.IsUnsupported(cause) {
		s.logger.Info("pdf endpoint unavailable, using html", slog.String("path", req.Path))
	} else {
		s.logger.Warn("pdf download failed, using html", slog.String("path", req.Path), slog.Any("error", cause))
	}
	if req.Fallback == nil {
		return nil, fmt.Errorf("download: no html fallback: %w", cause)
	}
	doc, err := req.Fallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("download: build html fallback: %w", errors.Join(err, cause))
	}
	if s.observer != nil {
		s.observer.ObservePDFFallback()
	}
	return &Result{
		Name:        Filename(req.Type, req.Ref, "html"),
		ContentType: ContentTypeHTML,
		Data:        doc.Bytes(),
		Fallback:    true,
		Cause:       cause,
	}, nil
}

// Download fetches the artifact and saves it with the saver.
func (s *Service) Download(ctx context.Context, saver Saver, req Request) (*Result, error) {
	res, err := s.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	path, err := saver.Save(res.Name, bytes.NewReader(res.Data))
	if err != nil {
		return nil, fmt.Errorf("download: save %s: %w", res.Name, err)
	}
	res.Path = path
	return res, nil
}

// isPDF accepts a body declared as application/pdf or one that carries the
// PDF signature.
func isPDF(bin *apiclient.Binary) bool {
	if bin == nil || len(bin.Data) == 0 {
		return false
	}
	if bytes.HasPrefix(bin.Data, []byte("%PDF-")) {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(bin.ContentType)
	return err == nil && mediaType == ContentTypePDF
}
