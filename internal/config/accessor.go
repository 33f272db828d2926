package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Dot paths address the JSON form of Config, e.g. "lexicon.bundlePath" or
// "providers.openai.apiKey". Map-valued sections accept any key.

// GetByPath returns the value at path. Fields omitted from the JSON form read
// as their zero value.
func GetByPath(cfg *Config, path string) (any, error) {
	t, err := pathType(path)
	if err != nil {
		return nil, err
	}
	root, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var node any = root
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config path %q: %s is not a section", path, key)
		}
		if node, ok = m[key]; !ok {
			return reflect.Zero(t).Interface(), nil
		}
	}
	return node, nil
}

// SetByPath parses raw as the type of the field at path and stores it in
// cfg. Lists are comma separated. cfg is left unchanged on error.
func SetByPath(cfg *Config, path, raw string) error {
	t, err := pathType(path)
	if err != nil {
		return err
	}
	value, err := parseAs(t, raw)
	if err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	root, err := tree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := root
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			parent[key] = child
		}
		parent = child
	}
	parent[parts[len(parts)-1]] = value

	data, err := json.Marshal(root)
	if err != nil {
		return err
	}
	next := new(Config)
	if err := json.Unmarshal(data, next); err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	*cfg = *next
	return nil
}

// pathType resolves path against the json tags of Config.
func pathType(path string) (reflect.Type, error) {
	if path == "" {
		return nil, fmt.Errorf("empty config path")
	}
	t := reflect.TypeOf(Config{})
	for _, key := range strings.Split(path, ".") {
		switch t.Kind() {
		case reflect.Struct:
			f, ok := fieldByTag(t, key)
			if !ok {
				return nil, fmt.Errorf("unknown config path %q", path)
			}
			t = f.Type
		case reflect.Map:
			if key == "" {
				return nil, fmt.Errorf("unknown config path %q", path)
			}
			t = t.Elem()
		default:
			return nil, fmt.Errorf("unknown config path %q", path)
		}
	}
	return t, nil
}

func fieldByTag(t reflect.Type, key string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name == key {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func parseAs(t reflect.Type, raw string) (any, error) {
	switch t.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		return strconv.ParseBool(raw)
	case reflect.Int, reflect.Int64:
		return strconv.ParseInt(raw, 10, 64)
	case reflect.Float64:
		return strconv.ParseFloat(raw, 64)
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			break
		}
		items := []string{}
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return items, nil
	case reflect.Struct, reflect.Map:
		return nil, fmt.Errorf("is a section, set one of its fields")
	}
	return nil, fmt.Errorf("unsupported value type %s", t)
}

// tree renders cfg in its JSON object form.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Sanitize returns a deep copy of cfg with API keys and tokens masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	out := new(Config)
	if err := json.Unmarshal(data, out); err != nil {
		return cfg
	}
	for name, prov := range out.Providers {
		prov.APIKey = mask(prov.APIKey)
		out.Providers[name] = prov
	}
	out.Attachments.AuthToken = mask(out.Attachments.AuthToken)
	return out
}

// mask keeps the first and last four characters of long secrets.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf path in the JSON form of cfg with its value.
func ListPaths(cfg *Config) map[string]any {
	root, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(k, sub)
				continue
			}
			out[k] = v
		}
	}
	walk("", root)
	return out
}
