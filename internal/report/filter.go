package report

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidFilter marks filter validation failures. They are detected before
// any request reaches the backend.
var ErrInvalidFilter = errors.New("report: invalid filter")

const (
	DirAsc  = "asc"
	DirDesc = "desc"

	DefaultPageSize = 20
	MaxPageSize     = 500
	MaxPage         = 1000000
)

// Filter is the per-screen filter state. Zero values are "not set" and are
// omitted from the backend request.
type Filter struct {
	From    string            `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To      string            `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Query   string            `json:"q,omitempty" validate:"max=200"`
	GroupBy string            `json:"groupBy,omitempty" validate:"max=64"`
	Page    int               `json:"page,omitempty" validate:"gte=0,lte=1000000"`
	Size    int               `json:"size,omitempty" validate:"gte=0,lte=500"`
	SortBy  string            `json:"sortBy,omitempty" validate:"max=64"`
	Dir     string            `json:"dir,omitempty" validate:"omitempty,oneof=asc desc"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// FieldError names the offending filter field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects field errors. It unwraps to ErrInvalidFilter.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidFilter, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidFilter }

var validate = validator.New()

// DefaultFilter is the state a screen resets to.
func DefaultFilter() Filter {
	return Filter{Page: 1, Size: DefaultPageSize}
}

// Validate checks field formats and the date range.
func (f Filter) Validate() error {
	var fields []FieldError
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: jsonName(fe.Field()), Message: fieldMessage(fe)})
		}
	}
	if len(fields) == 0 && f.From != "" && f.To != "" && f.To < f.From {
		fields = append(fields, FieldError{Field: "to", Message: "must not be before from"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Normalized fills defaults for paging and lower-cases the sort direction.
func (f Filter) Normalized() Filter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	f.Dir = strings.ToLower(strings.TrimSpace(f.Dir))
	f.Query = strings.TrimSpace(f.Query)
	return f
}

// Params returns the backend query parameters. Empty values are left in;
// the API client drops them before sending.
func (f Filter) Params() map[string]any {
	params := map[string]any{
		"from":    f.From,
		"to":      f.To,
		"q":       f.Query,
		"groupBy": f.GroupBy,
		"sortBy":  f.SortBy,
		"dir":     f.Dir,
		"page":    nil,
		"size":    nil,
	}
	if f.Page > 0 {
		params["page"] = f.Page - 1
	}
	if f.Size > 0 {
		params["size"] = f.Size
	}
	for k, v := range f.Extra {
		if _, reserved := params[k]; !reserved {
			params[k] = v
		}
	}
	return params
}

// Key is a stable identity for the filter, used to coalesce identical fetches.
func (f Filter) Key() string {
	params := f.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := params[k]
		if v == nil || v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s=%v&", k, v)
	}
	return b.String()
}

// FilterFromQuery reads a filter from URL query values. Unknown keys land in
// Extra so report-specific filters pass through.
func FilterFromQuery(q url.Values) Filter {
	f := DefaultFilter()
	f.From = q.Get("from")
	f.To = q.Get("to")
	f.Query = q.Get("q")
	f.GroupBy = q.Get("groupBy")
	f.SortBy = firstNonEmpty(q.Get("sortBy"), q.Get("sort"))
	f.Dir = q.Get("dir")
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = n
	}
	if n, err := strconv.Atoi(q.Get("size")); err == nil {
		f.Size = n
	}
	for k, vs := range q {
		switch k {
		case "from", "to", "q", "groupBy", "sortBy", "sort", "dir", "page", "size", "format", "layout":
			continue
		}
		if len(vs) > 0 && strings.TrimSpace(vs[0]) != "" {
			if f.Extra == nil {
				f.Extra = map[string]string{}
			}
			f.Extra[k] = vs[0]
		}
	}
	return f
}

// Range returns the date range for file names and print headers, substituting
// today's date in loc when a bound is open.
func (f Filter) Range(now time.Time, loc *time.Location) (string, string) {
	today := now.In(loc).Format("2006-01-02")
	from, to := f.From, f.To
	if from == "" {
		from = firstNonEmpty(f.Extra["date"], today)
	}
	if to == "" {
		to = firstNonEmpty(f.Extra["date"], today)
	}
	return from, to
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}

func jsonName(field string) string {
	switch field {
	case "Query":
		return "q"
	case "GroupBy":
		return "groupBy"
	case "SortBy":
		return "sortBy"
	default:
		return strings.ToLower(field)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
