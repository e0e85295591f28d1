package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/odyssey-erp/posdesk/internal/report"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// CSVOptions adds an optional comment header above the data.
type CSVOptions struct {
	Title string
	Range string
}

// WriteCSV streams the rows as CRLF-terminated CSV with a header row.
func WriteCSV(w io.Writer, f report.Formatter, cols report.Columns, rows []report.Row, opts CSVOptions) error {
	streamer := newCSVStreamer(w)
	if opts.Title != "" {
		if err := streamer.writeComment("# " + opts.Title); err != nil {
			return failed("Could not write the CSV file", err)
		}
	}
	if opts.Range != "" {
		if err := streamer.writeComment("# " + opts.Range); err != nil {
			return failed("Could not write the CSV file", err)
		}
	}
	if err := streamer.writeRow(cols.Labels()); err != nil {
		return failed("Could not write the CSV file", err)
	}
	for _, row := range rows {
		if err := streamer.writeRow(f.ExportRow(cols, row)); err != nil {
			return failed("Could not write the CSV file", err)
		}
	}
	if err := streamer.Flush(); err != nil {
		return failed("Could not write the CSV file", err)
	}
	return nil
}
