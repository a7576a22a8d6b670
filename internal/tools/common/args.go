package common

import (
	"fmt"
	"strconv"
	"strings"
)

// Argument helpers for tool handlers. JSON numbers arrive as float64, and
// some clients send numbers and booleans as strings, so both are accepted.

// Has reports whether key is present with a non-null value
func Has(args map[string]interface{}, key string) bool {
	v, ok := args[key]
	return ok && v != nil
}

// GetString returns the string argument key, or "" when absent or not a string
func GetString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// GetOptionalString returns a pointer to the string argument key, or nil when absent
func GetOptionalString(args map[string]interface{}, key string) (*string, error) {
	if !Has(args, key) {
		return nil, nil
	}
	s, ok := args[key].(string)
	if !ok {
		return nil, fmt.Errorf("%s must be a string", key)
	}
	return &s, nil
}

// RequireString returns the non-empty string argument key
func RequireString(args map[string]interface{}, key string) (string, error) {
	s, err := GetOptionalString(args, key)
	if err != nil {
		return "", err
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return *s, nil
}

// GetInt returns the integer argument key, or def when absent
func GetInt(args map[string]interface{}, key string, def int) (int, error) {
	if !Has(args, key) {
		return def, nil
	}
	switch v := args[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}

// GetOptionalInt returns a pointer to the integer argument key, or nil when absent
func GetOptionalInt(args map[string]interface{}, key string) (*int, error) {
	if !Has(args, key) {
		return nil, nil
	}
	n, err := GetInt(args, key, 0)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetFloat returns the numeric argument key, or def when absent
func GetFloat(args map[string]interface{}, key string, def float64) (float64, error) {
	if !Has(args, key) {
		return def, nil
	}
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number", key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

// GetBool returns the boolean argument key, or def when absent
func GetBool(args map[string]interface{}, key string, def bool) (bool, error) {
	if !Has(args, key) {
		return def, nil
	}
	switch v := args[key].(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean", key)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s must be a boolean", key)
	}
}

// GetStringSlice returns the string array argument key, or nil when absent
func GetStringSlice(args map[string]interface{}, key string) ([]string, error) {
	if !Has(args, key) {
		return nil, nil
	}
	switch v := args[key].(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", key, i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

// GetObject returns the object argument key, or nil when absent
func GetObject(args map[string]interface{}, key string) (map[string]interface{}, error) {
	if !Has(args, key) {
		return nil, nil
	}
	obj, ok := args[key].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an object", key)
	}
	return obj, nil
}

// GetObjectSlice returns the array-of-objects argument key, or nil when absent
func GetObjectSlice(args map[string]interface{}, key string) ([]map[string]interface{}, error) {
	if !Has(args, key) {
		return nil, nil
	}
	items, ok := args[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array of objects", key)
	}
	out := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", key, i)
		}
		out = append(out, obj)
	}
	return out, nil
}
