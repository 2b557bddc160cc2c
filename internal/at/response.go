package at

import (
	"strconv"
	"strings"
)

// Value returns the first response line that is not an echo or a prefixed
// result, e.g. the IMEI from AT+GSN.
func Value(lines []string) string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && line != "OK" && !strings.HasPrefix(line, "AT") && !strings.HasPrefix(line, "+") {
			return line
		}
	}
	return ""
}

// PrefixedValue returns the text after prefix on the first line carrying it.
func PrefixedValue(lines []string, prefix string) string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

// Fields splits a comma separated result value, trimming spaces and quotes.
func Fields(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(part), `"`)
	}
	return parts
}

// FloatField parses field i of fields, reporting false if it is missing or
// empty.
func FloatField(fields []string, i int) (float64, bool) {
	if i >= len(fields) || fields[i] == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[i], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Quote wraps s as an AT string parameter.
func Quote(s string) string {
	return `"` + s + `"`
}
