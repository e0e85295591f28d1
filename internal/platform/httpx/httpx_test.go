package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatuses(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("report: %w", ErrNotFound): http.StatusNotFound,
		ErrValidation:                         http.StatusBadRequest,
		ErrConflict:                           http.StatusConflict,
		ErrTimeout:                            http.StatusGatewayTimeout,
		ErrUnavailable:                        http.StatusBadGateway,
		ErrCanceled:                           StatusClientClosedRequest,
		fmt.Errorf("boom"):                    http.StatusInternalServerError,
	}
	for err, status := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		assert.Equal(t, status, rr.Code, err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorFields(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("filter: %w", FieldErrors{"from": "must be a date"}))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "must be a date", body.Errors["from"])
}

func TestAttachment(t *testing.T) {
	rr := httptest.NewRecorder()
	Attachment(rr, "XReport-2024-06-01.html", "", []byte("<html></html>"))
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=XReport-2024-06-01.html`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "13", rr.Header().Get("Content-Length"))
}
