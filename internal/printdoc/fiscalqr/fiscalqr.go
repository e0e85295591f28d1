// Package fiscalqr builds the TLV payload carried by e-invoice QR codes.
//
// Each field is encoded as one byte tag, one byte length and the UTF-8 value.
// Records are concatenated in tag order and the result is base64 encoded.
package fiscalqr

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Tags expected by QR scanners.
const (
	TagSellerName byte = 1
	TagTRN        byte = 2
	TagTimestamp  byte = 3
	TagTotal      byte = 4
	TagVAT        byte = 5
)

// MaxValueLen is the largest value a single length byte can describe.
const MaxValueLen = 255

var (
	ErrValueTooLong = errors.New("fiscalqr: value exceeds 255 bytes")
	ErrMalformed    = errors.New("fiscalqr: malformed payload")
)

// Fields are the invoice values carried by the QR code.
type Fields struct {
	SellerName string
	TRN        string
	Timestamp  string
	Total      string
	VAT        string
}

func (f Fields) records() []record {
	return []record{
		{TagSellerName, f.SellerName},
		{TagTRN, f.TRN},
		{TagTimestamp, f.Timestamp},
		{TagTotal, f.Total},
		{TagVAT, f.VAT},
	}
}

type record struct {
	tag   byte
	value string
}

// Encode returns the base64 TLV payload.
func Encode(f Fields) (string, error) {
	raw, err := Marshal(f)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Marshal returns the raw TLV bytes.
func Marshal(f Fields) ([]byte, error) {
	var out []byte
	for _, r := range f.records() {
		if len(r.value) > MaxValueLen {
			return nil, fmt.Errorf("%w: tag %d has %d bytes", ErrValueTooLong, r.tag, len(r.value))
		}
		out = append(out, r.tag, byte(len(r.value)))
		out = append(out, r.value...)
	}
	return out, nil
}

// Decode parses a base64 TLV payload. Unknown tags are ignored.
func Decode(payload string) (Fields, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var f Fields
	for i := 0; i < len(raw); {
		if i+2 > len(raw) {
			return Fields{}, fmt.Errorf("%w: truncated header at %d", ErrMalformed, i)
		}
		tag, n := raw[i], int(raw[i+1])
		i += 2
		if i+n > len(raw) {
			return Fields{}, fmt.Errorf("%w: tag %d overruns payload", ErrMalformed, tag)
		}
		value := string(raw[i : i+n])
		i += n
		switch tag {
		case TagSellerName:
			f.SellerName = value
		case TagTRN:
			f.TRN = value
		case TagTimestamp:
			f.Timestamp = value
		case TagTotal:
			f.Total = value
		case TagVAT:
			f.VAT = value
		}
	}
	return f, nil
}

// PNG renders the payload as a QR code image of size pixels.
func PNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("fiscalqr: render qr: %w", err)
	}
	return png, nil
}

// PNGDataURL renders the payload as an inline data URL so print documents
// carry no external image reference.
func PNGDataURL(payload string, size int) (string, error) {
	png, err := PNG(payload, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
