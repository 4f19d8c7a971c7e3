package monitor

import (
	"errors"
	"reflect"
	"strings"
)

var messagePatterns = []struct {
	needles []string
	pattern string
}{
	{[]string{"database", "connection"}, "database_error"},
	{[]string{"authentication", "auth"}, "authentication_error"},
	{[]string{"validation", "invalid"}, "validation_error"},
	{[]string{"rate limit", "too many requests"}, "rate_limit_error"},
	{[]string{"not found", "404"}, "not_found_error"},
	{[]string{"permission", "forbidden"}, "permission_error"},
	{[]string{"timeout", "timed out"}, "timeout_error"},
}

// extractPattern buckets err for alert grouping: first by message keywords,
// then by the concrete type at the bottom of the wrap chain.
func extractPattern(err error) string {
	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, n := range p.needles {
			if strings.Contains(msg, n) {
				return p.pattern
			}
		}
	}

	if name := typeName(rootCause(err)); name != "" {
		name = strings.ToLower(name)
		name = strings.TrimSuffix(name, "error")
		if name != "" {
			return name + "_error"
		}
	}
	return "unknown_error"
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// typeName returns the bare type name of err, or "" for the anonymous
// error types produced by errors.New and fmt.Errorf.
func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.PkgPath() {
	case "errors", "fmt":
		return ""
	}
	return t.Name()
}

func errorTypeTag(err error) string {
	if name := typeName(rootCause(err)); name != "" {
		return name
	}
	return "Error"
}

func buildTags(err error, c Context, sev Severity) []string {
	tags := []string{"error_type:" + errorTypeTag(err)}
	if c.UserID != "" {
		tags = append(tags, "user:"+c.UserID)
	}
	if c.URL != "" {
		tags = append(tags, "endpoint:"+c.URL)
	}
	if c.Method != "" {
		tags = append(tags, "method:"+c.Method)
	}
	return append(tags, "severity:"+string(sev))
}
