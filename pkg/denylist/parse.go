// Package denylist parses module denylists and remembers which denylisted
// module, if any, is present in the process.
//
// A denylist is a string of semicolon separated entries:
//
//	libfoo.so: 1.2.3.4, 1.2.3.5; libbar.so: 10.0.0.1
//
// Each version has exactly four dot separated components no larger than 65535.
package denylist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/user/remotevideo/pkg/ports"
)

// Entry is one module name with the versions that are denied.
type Entry struct {
	Module   string
	Versions []ports.ModuleVersion
}

// Denies reports whether v is listed.
func (e Entry) Denies(v ports.ModuleVersion) bool {
	for _, d := range e.Versions {
		if d == v {
			return true
		}
	}
	return false
}

// Parse splits config into entries. Malformed entries and versions are
// skipped and reported through log, which may be nil.
func Parse(config string, log ports.Logger) []Entry {
	var entries []Entry
	for _, raw := range strings.Split(config, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, versions, ok := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			warn(log, "Skipping malformed denylist entry %q", raw)
			continue
		}
		e := Entry{Module: name}
		for _, vs := range strings.Split(versions, ",") {
			vs = strings.TrimSpace(vs)
			v, err := ParseVersion(vs)
			if err != nil {
				warn(log, "Skipping malformed version %q for %s: %v", vs, name, err)
				continue
			}
			e.Versions = append(e.Versions, v)
		}
		if len(e.Versions) == 0 {
			warn(log, "Skipping denylist entry %s without valid versions", name)
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// ParseVersion parses "a.b.c.d".
func ParseVersion(s string) (ports.ModuleVersion, error) {
	var v ports.ModuleVersion
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return v, fmt.Errorf("want 4 components, got %d", len(parts))
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return v, fmt.Errorf("component %d: %w", i, err)
		}
		if n > 0xffff {
			return v, fmt.Errorf("component %d out of range: %d", i, n)
		}
		v[i] = uint16(n)
	}
	return v, nil
}

func warn(log ports.Logger, msg string, args ...interface{}) {
	if log != nil {
		log.Warn(msg, args...)
	}
}
