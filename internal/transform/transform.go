// Package transform implements the Transform Engine (spec.md §4.4): a
// set of targeted rewrites over the root <svg ...> open tag and full-body
// token replacements, deliberately avoiding full XML parsing in the hot
// path (spec.md §1, §9 "SVG transformation").
package transform

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"iconserve/internal/model"
)

var (
	rootTagRe    = regexp.MustCompile(`(?s)<svg\b[^>]*>`)
	viewBoxRe    = regexp.MustCompile(`viewBox\s*=\s*"([^"]*)"`)
	classAttrRe  = regexp.MustCompile(`\bclass\s*=\s*"([^"]*)"`)
	widthAttrRe  = regexp.MustCompile(`\bwidth\s*=\s*"[^"]*"`)
	heightAttrRe = regexp.MustCompile(`\bheight\s*=\s*"[^"]*"`)
	strokeWRe    = regexp.MustCompile(`\bstroke-width\s*=\s*"[^"]*"`)
	strokeWCamel = regexp.MustCompile(`\bstrokeWidth\s*=\s*"[^"]*"`)
	transformRe  = regexp.MustCompile(`\btransform\s*=\s*"([^"]*)"`)
)

// ViewBox is a parsed "x y w h" viewBox.
type ViewBox struct {
	X, Y, W, H float64
}

// Center returns the viewBox's geometric center.
func (vb ViewBox) Center() (cx, cy float64) {
	return vb.X + vb.W/2, vb.Y + vb.H/2
}

// ParseViewBox parses a "x y w h" viewBox string.
func ParseViewBox(s string) (ViewBox, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 4 {
		return ViewBox{}, false
	}
	vals := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ViewBox{}, false
		}
		vals[i] = v
	}
	return ViewBox{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, true
}

// Transform rewrites svg according to opts. It is deterministic in
// (svg, opts): calling it twice with identical arguments yields an
// identical result (spec.md §8 determinism invariant).
//
// The root tag is located once and rewritten in isolation first (size,
// className, customAttributes, geometry); the currentColor and
// stroke-width replacements (spec.md §4.4 rules 2 and 3) then run over
// the reassembled document, root tag included. Because the root tag is
// never re-located after the color replace, the reference
// implementation's size+color interaction bug (DESIGN.md Open Question
// 1) cannot occur.
func Transform(svg string, opts model.TransformParams) (string, error) {
	loc := rootTagRe.FindStringIndex(svg)
	if loc == nil {
		return "", fmt.Errorf("transform: no root <svg> tag found")
	}
	head, tag, tail := svg[:loc[0]], svg[loc[0]:loc[1]], svg[loc[1]:]

	// 1. size -> width/height on the root tag.
	if opts.Size > 0 {
		tag = upsertAttr(tag, widthAttrRe, "width", strconv.Itoa(opts.Size))
		tag = upsertAttr(tag, heightAttrRe, "height", strconv.Itoa(opts.Size))
	}

	// 4. className on the root tag.
	if opts.ClassName != "" {
		tag = mergeClass(tag, opts.ClassName)
	}

	// 5. customAttributes, sorted for determinism.
	if len(opts.CustomAttributes) > 0 {
		keys := make([]string, 0, len(opts.CustomAttributes))
		for k := range opts.CustomAttributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tag = upsertNamedAttr(tag, k, opts.CustomAttributes[k])
		}
	}

	// 6. geometric transforms, require a parseable viewBox on the
	// ORIGINAL tag (before our own rewrites).
	if opts.Mirror || (opts.Rotate != nil && *opts.Rotate != 0) {
		if vb, ok := ParseViewBox(firstMatch(viewBoxRe, svg[loc[0]:loc[1]])); ok {
			var pieces []string
			if opts.Mirror {
				cx, _ := vb.Center()
				pieces = append(pieces, fmt.Sprintf("scale(-1, 1) translate(%s, 0)", trimFloat(-2*cx)))
			}
			if opts.Rotate != nil && *opts.Rotate != 0 {
				cx, cy := vb.Center()
				pieces = append(pieces, fmt.Sprintf("rotate(%s %s %s)", trimFloat(*opts.Rotate), trimFloat(cx), trimFloat(cy)))
			}
			if len(pieces) > 0 {
				composed := strings.Join(pieces, " ")
				if existing := firstMatch(transformRe, tag); existing != "" {
					composed = composed + " " + existing
				}
				tag = upsertAttr(tag, transformRe, "transform", composed)
			}
		}
	}

	out := head + tag + tail

	// 2. currentColor -> color, across the WHOLE document, root tag
	// included; a class or custom attribute value containing
	// "currentColor" is replaced as well.
	if opts.Color != "" && !strings.EqualFold(opts.Color, "currentColor") {
		out = strings.ReplaceAll(out, "currentColor", opts.Color)
	}

	// 3. stroke-width, across the whole document.
	if opts.StrokeWidth > 0 {
		sw := formatStroke(opts.StrokeWidth)
		out = strokeWRe.ReplaceAllString(out, fmt.Sprintf(`stroke-width="%s"`, sw))
		out = strokeWCamel.ReplaceAllString(out, fmt.Sprintf(`strokeWidth="%s"`, sw))
	}

	return out, nil
}

func formatStroke(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// upsertAttr replaces the first match of re within tag, or inserts
// name="value" just before the tag's closing '>' / '/>' when absent.
func upsertAttr(tag string, re *regexp.Regexp, name, value string) string {
	repl := fmt.Sprintf(`%s="%s"`, name, value)
	if re.MatchString(tag) {
		return re.ReplaceAllString(tag, repl)
	}
	return insertBeforeClose(tag, repl)
}

func upsertNamedAttr(tag, name, value string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*=\s*"[^"]*"`)
	return upsertAttr(tag, re, name, value)
}

func insertBeforeClose(tag, attr string) string {
	selfClosing := strings.HasSuffix(strings.TrimSpace(tag), "/>")
	if selfClosing {
		idx := strings.LastIndex(tag, "/>")
		return tag[:idx] + " " + attr + " " + tag[idx:]
	}
	idx := strings.LastIndex(tag, ">")
	return tag[:idx] + " " + attr + tag[idx:]
}

func mergeClass(tag, className string) string {
	existing := firstMatch(classAttrRe, tag)
	tokens := strings.Fields(existing)
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		seen[t] = true
	}
	for _, t := range strings.Fields(className) {
		if !seen[t] {
			tokens = append(tokens, t)
			seen[t] = true
		}
	}
	merged := strings.Join(tokens, " ")
	return upsertAttr(tag, classAttrRe, "class", merged)
}

// Fingerprint returns the deterministic cache key for (svgHash, opts).
func Fingerprint(svg string, opts model.TransformParams) string {
	h := sha1.Sum([]byte(svg))
	svgHash := hex.EncodeToString(h[:])
	b, _ := json.Marshal(canonicalOpts(opts))
	return svgHash + ":" + string(b)
}

// canonicalOpts produces a stable JSON-marshalable view of opts with
// sorted custom-attribute keys, so Fingerprint is deterministic
// regardless of map iteration order.
func canonicalOpts(opts model.TransformParams) map[string]any {
	m := map[string]any{
		"size":      opts.Size,
		"stroke":    opts.StrokeWidth,
		"color":     opts.Color,
		"mirror":    opts.Mirror,
		"className": opts.ClassName,
	}
	if opts.Rotate != nil {
		m["rotate"] = *opts.Rotate
	}
	if len(opts.CustomAttributes) > 0 {
		keys := make([]string, 0, len(opts.CustomAttributes))
		for k := range opts.CustomAttributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([][2]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, [2]string{k, opts.CustomAttributes[k]})
		}
		m["attrs"] = pairs
	}
	return m
}

// ETag computes a weak-acceptable rolling hash ETag for output bytes
// (spec.md §4.4): the output is fully determined by the fingerprint, so
// a simple hash is an acceptable ETag source.
func ETag(output []byte) string {
	var h uint32 = 2166136261
	for _, b := range output {
		h ^= uint32(b)
		h *= 16777619
	}
	return fmt.Sprintf(`"%08x"`, h)
}
