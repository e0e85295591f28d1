package apiclient

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SanitizeParams converts params into query values, dropping keys whose
// value is empty, blank, nil or a nil pointer so the backend never receives
// placeholder filters. Supported inputs are url.Values, map[string]string,
// map[string]any and nil.
func SanitizeParams(params any) (url.Values, error) {
	out := url.Values{}
	switch p := params.(type) {
	case nil:
	case url.Values:
		for key, values := range p {
			for _, v := range values {
				for _, s := range paramValues(v) {
					out.Add(key, s)
				}
			}
		}
	case map[string]string:
		for key, v := range p {
			for _, s := range paramValues(v) {
				out.Set(key, s)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(p))
		for key := range p {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			for _, v := range paramValues(p[key]) {
				out.Add(key, v)
			}
		}
	default:
		return nil, fmt.Errorf("apiclient: unsupported params type %T", params)
	}
	return out, nil
}

func paramValues(v any) []string {
	if isEmpty(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		var out []string
		for i := 0; i < rv.Len(); i++ {
			out = append(out, paramValues(rv.Index(i).Interface())...)
		}
		return out
	}
	s := formatParam(rv.Interface())
	if s == "" {
		return nil
	}
	return []string{s}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return true
		}
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func formatParam(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
