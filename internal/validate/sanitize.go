package validate

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// MaxSVGPayloadBytes is the upload size cap for raw SVG payloads (§4.1).
const MaxSVGPayloadBytes = 1 << 20 // 1 MiB

// allowedElements is the fixed element allowlist from spec.md §4.1.
var allowedElements = map[string]bool{
	"svg": true, "g": true, "path": true, "circle": true, "ellipse": true,
	"line": true, "polygon": true, "polyline": true, "rect": true,
	"text": true, "tspan": true, "defs": true, "use": true, "symbol": true,
	"lineargradient": true, "radialgradient": true, "stop": true,
	"clippath": true, "mask": true, "pattern": true, "filter": true,
	"fegaussianblur": true, "feoffset": true, "feblend": true, "fecolormatrix": true,
	"title": true, "desc": true, "metadata": true,
}

// allowedAttributes is the glossary's "Allowed SVG attributes" list.
var allowedAttributes = buildAllowedAttributes(
	"id", "class", "style", "transform", "fill", "stroke", "stroke-width",
	"stroke-linecap", "stroke-linejoin", "stroke-dasharray", "stroke-dashoffset",
	"opacity", "fill-opacity", "stroke-opacity", "d", "cx", "cy", "r", "rx", "ry",
	"x", "y", "x1", "y1", "x2", "y2", "points", "width", "height",
	"font-family", "font-size", "font-weight", "text-anchor", "dominant-baseline",
	"viewBox", "preserveAspectRatio", "xmlns", "xmlns:xlink", "version",
	"offset", "stop-color", "stop-opacity", "gradientUnits", "gradientTransform",
	"spreadMethod", "xlink:href", "href", "clip-path", "mask", "clip-rule",
	"filter", "stdDeviation", "in", "in2", "mode", "result", "type", "values",
	"dur", "repeatCount", "role", "aria-label", "aria-hidden", "focusable",
)

func buildAllowedAttributes(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = true
	}
	return m
}

// Threat is a single detected threat code from sanitization.
type Threat string

const (
	ThreatTooLarge        Threat = "PAYLOAD_TOO_LARGE"
	ThreatMalformedXML    Threat = "MALFORMED_XML"
	ThreatDisallowedTag   Threat = "DISALLOWED_ELEMENT"
	ThreatDisallowedAttr  Threat = "DISALLOWED_ATTRIBUTE"
	ThreatScriptTag       Threat = "SCRIPT_TAG"
	ThreatEventHandler    Threat = "EVENT_HANDLER_ATTRIBUTE"
	ThreatDangerousScheme Threat = "DANGEROUS_URL_SCHEME"
)

// eventHandlerAttr matches inline event-handler attributes such as
// ` onclick=` or ` onload =`, per spec.md §4.3's "\son\w+=" pattern.
var eventHandlerAttr = regexp.MustCompile(`\son\w+\s*=`)

// SanitizeSVG validates and sanitizes an SVG payload per spec.md §4.1.
// A case-insensitive text scan first rejects script tags, inline event
// handlers, and javascript:/vbscript: URLs anywhere in the payload; the
// element and attribute allowlists are then enforced by walking the
// parsed XML token by token. Comments are copied through unchecked. Any
// detected threat yields an empty output and a non-empty threat list;
// partial sanitization is never exposed.
func SanitizeSVG(payload []byte) (sanitized []byte, threats []Threat) {
	if len(payload) > MaxSVGPayloadBytes {
		return nil, []Threat{ThreatTooLarge}
	}
	lower := strings.ToLower(string(payload))
	if strings.Contains(lower, "<script") {
		threats = append(threats, ThreatScriptTag)
	}
	if eventHandlerAttr.MatchString(lower) {
		threats = append(threats, ThreatEventHandler)
	}
	if strings.Contains(lower, "javascript:") || strings.Contains(lower, "vbscript:") {
		threats = append(threats, ThreatDangerousScheme)
	}
	if len(threats) > 0 {
		return nil, threats
	}

	dec := xml.NewDecoder(bytes.NewReader(payload))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	var out bytes.Buffer
	enc := xml.NewEncoder(&out)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, []Threat{ThreatMalformedXML}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			local := strings.ToLower(t.Name.Local)
			if !allowedElements[local] {
				return nil, []Threat{ThreatDisallowedTag}
			}
			var attrs []xml.Attr
			for _, a := range t.Attr {
				name := attrQualifiedName(a.Name)
				lname := strings.ToLower(name)
				if !allowedAttributes[lname] {
					return nil, []Threat{ThreatDisallowedAttr}
				}
				lv := strings.ToLower(a.Value)
				if strings.Contains(lv, "javascript:") || strings.Contains(lv, "vbscript:") {
					return nil, []Threat{ThreatDangerousScheme}
				}
				attrs = append(attrs, xml.Attr{Name: xml.Name{Local: name}, Value: a.Value})
			}
			if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: t.Name.Local}, Attr: attrs}); err != nil {
				return nil, []Threat{ThreatMalformedXML}
			}
		case xml.EndElement:
			if err := enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: t.Name.Local}}); err != nil {
				return nil, []Threat{ThreatMalformedXML}
			}
		case xml.CharData, xml.Comment:
			if err := enc.EncodeToken(tok); err != nil {
				return nil, []Threat{ThreatMalformedXML}
			}
		default:
			// ProcInst, Directive: dropped silently, not security-relevant.
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, []Threat{ThreatMalformedXML}
	}
	return out.Bytes(), nil
}

func attrQualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return fmt.Sprintf("%s:%s", n.Space, n.Local)
}

// ValidateFetchedSVG checks a blob fetched from storage (spec.md §4.3):
// must contain <svg and </svg>; must not contain <script>, inline
// event handlers, or javascript: URLs. This is a cheaper, non-rewriting
// check than SanitizeSVG, used on the read path.
func ValidateFetchedSVG(body []byte) error {
	lower := strings.ToLower(string(body))
	if !strings.Contains(lower, "<svg") || !strings.Contains(lower, "</svg>") {
		return fmt.Errorf("not a valid svg payload")
	}
	if strings.Contains(lower, "<script") {
		return fmt.Errorf("svg payload contains a script tag")
	}
	if eventHandlerAttr.MatchString(lower) {
		return fmt.Errorf("svg payload contains an inline event handler")
	}
	if strings.Contains(lower, "javascript:") {
		return fmt.Errorf("svg payload contains a javascript: url")
	}
	return nil
}
