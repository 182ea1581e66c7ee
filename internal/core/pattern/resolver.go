// Package pattern normalizes loosely typed rule and field descriptors into
// compiled regular expressions.
package pattern

import (
	"math"
	"regexp"
	"strings"
	"sync"
)

const (
	defaultFlags = "i"
	defaultGroup = 1
)

// Source is a descriptor after shape detection: either a Literal or a Descriptor.
type Source interface {
	expression() (pattern, flags string, group int)
}

// Literal is a bare pattern string.
type Literal string

func (l Literal) expression() (string, string, int) {
	return string(l), defaultFlags, defaultGroup
}

// Descriptor is the structured form of a pattern.
type Descriptor struct {
	Pattern string
	Flags   string
	Group   int
}

func (d Descriptor) expression() (string, string, int) {
	return d.Pattern, d.Flags, d.Group
}

// Compiled is the canonical pattern used by matching and extraction.
type Compiled struct {
	Regexp *regexp.Regexp
	Group  int
}

// Matches reports whether the pattern hits text at least once.
func (c *Compiled) Matches(text string) bool {
	return c.Regexp.MatchString(text)
}

// Capture returns the configured capture group of the first match.
func (c *Compiled) Capture(text string) (string, bool) {
	m := c.Regexp.FindStringSubmatchIndex(text)
	if m == nil {
		return "", false
	}
	if c.Group < 0 || 2*c.Group+1 >= len(m) {
		return "", false
	}
	start, end := m[2*c.Group], m[2*c.Group+1]
	if start < 0 {
		return "", false
	}
	return text[start:end], true
}

// Parse detects the shape of raw. Unknown shapes report false.
func Parse(raw any) (Source, bool) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, false
		}
		return Literal(v), true
	case map[string]any:
		return parseDescriptor(v)
	default:
		return nil, false
	}
}

func parseDescriptor(obj map[string]any) (Source, bool) {
	expr, ok := firstString(obj, "pattern", "regex")
	if !ok || expr == "" {
		return nil, false
	}
	flags, ok := firstString(obj, "flags", "options")
	if !ok {
		flags = defaultFlags
	}
	group := defaultGroup
	if raw, present := firstPresent(obj, "group", "captureGroup"); present {
		n, ok := asInt(raw)
		if !ok {
			return nil, false
		}
		group = n
	}
	return Descriptor{Pattern: expr, Flags: flags, Group: group}, true
}

// Resolve parses and compiles raw. Anything that cannot become a usable
// pattern, including expressions the regexp engine rejects, reports false.
func Resolve(raw any) (*Compiled, bool) {
	src, ok := Parse(raw)
	if !ok {
		return nil, false
	}
	return Compile(src)
}

// Compile turns a parsed Source into a Compiled pattern.
func Compile(src Source) (*Compiled, bool) {
	expr, flags, group := src.expression()
	re, err := compileCached(inlineFlags(flags) + expr)
	if err != nil {
		return nil, false
	}
	return &Compiled{Regexp: re, Group: group}, true
}

var cache sync.Map

func compileCached(expr string) (*regexp.Regexp, error) {
	if re, ok := cache.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	cache.Store(expr, re)
	return re, nil
}

// inlineFlags maps ECMAScript-style flag letters onto RE2 inline flags.
// g, u and y have no RE2 meaning for a single search and are dropped.
func inlineFlags(flags string) string {
	var b strings.Builder
	for _, f := range []byte{'i', 'm', 's'} {
		if strings.IndexByte(flags, f) >= 0 {
			b.WriteByte(f)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			s, isString := v.(string)
			return s, isString
		}
	}
	return "", false
}

func firstPresent(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
