package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// A key is secret when its last segment is one of these.
var secretSuffixes = []string{"password", "token", "api_key"}

// IsSecretKey reports whether the dot-separated key holds a credential.
func IsSecretKey(key string) bool {
	last := key[strings.LastIndexByte(key, '.')+1:]
	for _, s := range secretSuffixes {
		if last == s {
			return true
		}
	}
	return false
}

// Flatten converts a nested map into a flat map with dot-separated keys,
// e.g. {"brain": {"policy": "retry"}} becomes {"brain.policy": "retry"}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A scalar in the way of a deeper key
// is replaced by a map.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets returns a copy of flat with credentials hidden. Passwords are
// replaced entirely; tokens and API keys keep their last 4 characters so
// they can be told apart. Empty values stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		s, ok := v.(string)
		if !ok || s == "" || !IsSecretKey(k) {
			out[k] = v
			continue
		}
		if strings.HasSuffix(k, "password") {
			out[k] = "********"
			continue
		}
		r := []rune(s)
		if len(r) > 4 {
			r = r[len(r)-4:]
		}
		out[k] = "***" + string(r)
	}
	return out
}

// coerce decodes raw to the type of the value it replaces, so that
// `config set admin.telegram_chat_id 42` stays a string and
// `config set keywords urgent,invoice` becomes a list. Keys without a
// current value are decoded as JSON when possible, otherwise kept as text.
func coerce(key string, current any, raw string) (any, error) {
	switch current.(type) {
	case string:
		return raw, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s wants true or false, got %q", key, raw)
		}
		return b, nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s wants a number, got %q", key, raw)
		}
		return f, nil
	case []any:
		var list []any
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return list, nil
		}
		list = []any{}
		for _, item := range ParseKeywords(raw) {
			list = append(list, item)
		}
		return list, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	return v, nil
}
