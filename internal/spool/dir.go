package spool

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/posdesk/internal/platform/files"
)

// DirSpooler writes printed PDFs into a directory watched by the print
// server.
type DirSpooler struct {
	Dir string
}

// Spool implements Spooler.
func (s DirSpooler) Spool(_ context.Context, job *Job, data []byte) (string, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return "", fmt.Errorf("spool dir not configured")
	}
	name := fmt.Sprintf("%s-%s.pdf", files.SafeName(string(job.Doc.Kind)), job.ID)
	return files.WriteAtomic(s.Dir, name, bytes.NewReader(data))
}
