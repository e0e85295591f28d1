package apiclient

import (
	"bytes"
	"io"
	"mime/multipart"
	"sort"
)

// Multipart is a form upload. The writer owns the boundary, so the
// Content-Type is never forced to JSON for it.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

// File is one part of a multipart upload.
type File struct {
	Field    string
	Filename string
	Data     io.Reader
}

func (m *Multipart) encode() (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	keys := make([]string, 0, len(m.Fields))
	for key := range m.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, m.Fields[key]); err != nil {
			return nil, "", err
		}
	}
	for _, f := range m.Files {
		part, err := writer.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, "", err
		}
		if f.Data != nil {
			if _, err := io.Copy(part, f.Data); err != nil {
				return nil, "", err
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
