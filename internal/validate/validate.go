// Package validate implements the Validator (spec.md §4.1): parsing and
// bounds-checking of query/path/JSON-body parameters, plus the
// allowlist-based SVG and key sanitizers that guard the hot path
// against path traversal and script injection.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"iconserve/internal/apierr"
)

const (
	MinSize, MaxSize, DefaultSize             = 8, 512, 24
	MinStroke, MaxStroke, DefaultStrokeF       = 0.5, 3, 2.0
	DefaultColor                               = "currentColor"
)

var (
	nameRe   = regexp.MustCompile(`^[a-z0-9-]+$`)
	hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}){1,2}$`)
	cssNamed = regexp.MustCompile(`^[a-zA-Z]+$`)
	attrName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9\-_:.]*$`)
)

// ParseSize parses the "size" query parameter: integer in [8,512],
// defaulting to 24 when s is empty.
func ParseSize(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultSize, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < MinSize || n > MaxSize {
		return 0, apierr.New(apierr.InvalidSize, fmt.Sprintf("size must be an integer in [%d, %d]", MinSize, MaxSize))
	}
	return n, nil
}

// ParseStrokeWidth parses "stroke"/"stroke-width": a number in
// [0.5, 3], defaulting to 2 when s is empty.
func ParseStrokeWidth(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultStrokeF, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < MinStroke || f > MaxStroke {
		return 0, apierr.New(apierr.InvalidParameter, fmt.Sprintf("stroke width must be a number in [%.1f, %.0f]", MinStroke, MaxStroke))
	}
	return f, nil
}

// ParseColor parses "color": currentColor (default), a hex color, or a
// CSS named color (alphabetic identifier).
func ParseColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultColor, nil
	}
	if s == DefaultColor || strings.EqualFold(s, DefaultColor) {
		return DefaultColor, nil
	}
	if hexColor.MatchString(s) {
		return s, nil
	}
	if cssNamed.MatchString(s) {
		return s, nil
	}
	return "", apierr.New(apierr.InvalidColor, "color must be currentColor, a hex color, or a CSS named color")
}

// ParseRotate parses an optional rotation in degrees. An empty string
// yields (nil, nil). The caller may normalize to [0, 360) before
// composing transform geometry.
func ParseRotate(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, apierr.New(apierr.InvalidParameter, "rotate must be a number")
	}
	return &f, nil
}

// NormalizeRotate folds deg into [0, 360).
func NormalizeRotate(deg float64) float64 {
	d := deg
	for d < 0 {
		d += 360
	}
	for d >= 360 {
		d -= 360
	}
	return d
}

// ParseMirror parses a boolean: true/1/yes/on (case-insensitive, after
// trimming), else false.
func ParseMirror(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// ParseLimit parses a pagination limit: floor of input, clamped to
// [1, max], defaulting to def when s is empty or invalid.
func ParseLimit(s string, def, max int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	n := int(f) // floor for non-negative inputs
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}

// ParseOffset parses a non-negative pagination offset (floor of input).
func ParseOffset(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}

// Name validates an icon name: ^[a-z0-9-]+$, length 1..100.
func Name(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 1 || len(s) > 100 || !nameRe.MatchString(s) {
		return "", apierr.New(apierr.InvalidParameter, "name must match [a-z0-9-]+ with length 1-100")
	}
	return s, nil
}

// Source validates a source id: ^[a-z0-9-]+$, length 1..50.
func Source(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 1 || len(s) > 50 || !nameRe.MatchString(s) {
		return "", apierr.New(apierr.InvalidParameter, "source must match [a-z0-9-]+ with length 1-50")
	}
	return s, nil
}

// Query validates a search "q" parameter: trimmed, lowercased, length >= 2.
func Query(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return "", apierr.New(apierr.InvalidParameter, "q must be at least 2 characters")
	}
	return s, nil
}

var dangerousURLSchemes = []string{"javascript:", "vbscript:", "data:text/html", "file:", "about:"}

// CustomAttributes validates a map of custom attribute key/value pairs
// (spec.md §4.1): keys must match the attribute-name grammar,
// event-handler attributes and dangerous URL-bearing attributes are
// rejected outright.
func CustomAttributes(attrs map[string]string) (map[string]string, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if !attrName.MatchString(k) {
			return nil, apierr.Newf(apierr.InvalidParameter, "invalid attribute name %q", k)
		}
		if strings.HasPrefix(strings.ToLower(k), "on") {
			return nil, apierr.Newf(apierr.InvalidParameter, "event-handler attribute %q is not allowed", k)
		}
		lv := strings.ToLower(v)
		for _, scheme := range dangerousURLSchemes {
			if strings.Contains(lv, scheme) {
				return nil, apierr.Newf(apierr.InvalidParameter, "attribute %q contains a disallowed URL scheme", k)
			}
		}
		out[k] = v
	}
	return out, nil
}

// Key sanitizes a blob-store content key (spec.md §4.1): rejects empty,
// "..", or a leading "/"; allows only [a-zA-Z0-9\-_./]; collapses runs
// of "/" (so "a//b" becomes "a/b" rather than being rejected).
func Key(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if strings.Contains(raw, "..") {
		return "", false
	}
	if strings.HasPrefix(raw, "/") {
		return "", false
	}
	for _, r := range raw {
		if !isKeyRune(r) {
			return "", false
		}
	}
	var b strings.Builder
	prevSlash := false
	for _, r := range raw {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if strings.Contains(out, "//") {
		return "", false
	}
	return out, true
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.' || r == '/':
		return true
	default:
		return false
	}
}
