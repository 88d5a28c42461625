package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env reads typed values from the process environment. An empty variable
// yields the default; a value that does not parse also yields the default
// and is recorded in errs.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parsed[T any](e *env, key string, def T, parse func(string) (T, error)) T {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: cannot parse %q", key, raw))
		return def
	}
	return v
}

func (e *env) integer(key string, def int) int { return parsed(e, key, def, strconv.Atoi) }

func (e *env) boolean(key string, def bool) bool { return parsed(e, key, def, strconv.ParseBool) }

func (e *env) duration(key string, def time.Duration) time.Duration {
	return parsed(e, key, def, time.ParseDuration)
}

// list splits a comma separated value and drops empty items.
func (e *env) list(key, def string) []string {
	var out []string
	for _, item := range strings.Split(e.str(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
