package record

import (
	"strconv"
	"strings"
)

// ToInt converts a loosely typed JSON/YAML value to int.
// Supports every Go integer kind, float32/float64 and numeric strings. Anything else is 0.
func ToInt(v interface{}) int {
	switch i := v.(type) {
	case int:
		return i
	case int64:
		return int(i)
	case int32:
		return int(i)
	case int16:
		return int(i)
	case int8:
		return int(i)
	case uint:
		return int(i)
	case uint64:
		return int(i)
	case uint32:
		return int(i)
	case uint16:
		return int(i)
	case uint8:
		return int(i)
	case float64:
		return int(i)
	case float32:
		return int(i)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(i))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// ToString renders scalar values as trimmed strings. Backend ids arrive as JSON
// numbers, so floats without a fractional part print without a decimal point.
func ToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return strconv.Itoa(ToInt(s))
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// ToBool accepts booleans, "true"/"yes"/"1" style strings and non-zero numbers.
func ToBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "1", "on":
			return true
		}
		return false
	case nil:
		return false
	default:
		return ToInt(b) != 0
	}
}

// ToStringSlice converts []string, []interface{} or a comma separated string into a
// slice of trimmed, non-empty strings. The result is never nil.
func ToStringSlice(v interface{}) []string {
	out := []string{}
	switch s := v.(type) {
	case []string:
		for _, item := range s {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	case []interface{}:
		for _, item := range s {
			if str := ToString(item); str != "" {
				out = append(out, str)
			}
		}
	case string:
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
