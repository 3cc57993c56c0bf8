package config

import (
	"maps"
	"strconv"
	"strings"
	"time"
)

// Config is a read-only view of decoded settings data. Keys may be dotted
// paths into nested maps ("parallel.mode"). Accessors return the default
// when a key is missing or holds a value that cannot be coerced.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Config:
		return m.data, true
	}
	return nil, false
}

// lookup walks a dotted key through nested maps.
func (c Config) lookup(key string) (any, bool) {
	var cur any = c.data
	for part := range strings.SplitSeq(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Section returns the nested map under key as a Config.
// Missing or non-map values yield an empty Config.
func (c Config) Section(key string) Config {
	v, _ := c.lookup(key)
	if m, ok := asMap(v); ok {
		return New(m)
	}
	return New(nil)
}

// String returns the string under key.
func (c Config) String(key, defaultVal string) string {
	v, _ := c.lookup(key)
	if s, ok := v.(string); ok {
		return s
	}
	return defaultVal
}

// Duration returns the duration under key. Strings are parsed with
// time.ParseDuration; bare numbers are seconds.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Bool returns the boolean under key. Strings accepted by
// strconv.ParseBool are converted, so environment overrides work.
func (c Config) Bool(key string, defaultVal bool) bool {
	v, _ := c.lookup(key)
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// Int returns the integer under key. Whole float64 values (JSON numbers)
// and decimal strings are converted.
func (c Config) Int(key string, defaultVal int) int {
	v, _ := c.lookup(key)
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}

// WithEnv returns a copy of c with overrides taken from environment entries
// ("KEY=value") that start with prefix. The rest of the variable name is
// lower-cased and split on "__" into a key path, so
// FLOWCOMPOSE_PARALLEL__MAX_CONCURRENCY=8 sets parallel.max_concurrency.
// Override values are strings; the accessors coerce them.
func (c Config) WithEnv(environ []string, prefix string) Config {
	out := deepCopy(c.data)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, prefix)), "__")
		set(out, path, value)
	}
	return New(out)
}

func set(m map[string]any, path []string, value string) {
	for _, part := range path[:len(path)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

func deepCopy(m map[string]any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = make(map[string]any)
	}
	for k, v := range out {
		if nested, ok := asMap(v); ok {
			out[k] = deepCopy(nested)
		}
	}
	return out
}
