// Package bulk implements the Bulk Composer half of C8 (spec.md §4.8):
// archive generation over up to 100 icons in one of three formats,
// reusing the Batch Composer's per-entry resolution so a bulk request
// and a batch request share identical validation and in-band error
// semantics.
package bulk

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"iconserve/internal/apierr"
	"iconserve/internal/batch"
	"iconserve/internal/iconsvc"
)

// MaxItems is the hard cap on a single bulk request (spec.md §4.8).
const MaxItems = 100

// MaxZipUncompressedBytes is the store-method ZIP's uncompressed-size
// cap; the builder stops accepting entries once adding the next one
// would exceed it.
const MaxZipUncompressedBytes = 25 * 1024 * 1024

// Format is one of the three archive formats spec.md §4.8 names.
type Format string

const (
	FormatZip        Format = "zip"
	FormatSVGBundle  Format = "svg-bundle"
	FormatJSONSprite Format = "json-sprite"
)

// ParseFormat validates the "format" query parameter.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatZip, FormatSVGBundle, FormatJSONSprite:
		return Format(s), nil
	default:
		return "", apierr.Newf(apierr.InvalidFormat, "format must be one of zip, svg-bundle, json-sprite, got %q", s)
	}
}

// Extension returns the archive's file extension for the
// Content-Disposition filename.
func (f Format) Extension() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatSVGBundle:
		return "svg"
	case FormatJSONSprite:
		return "json"
	default:
		return "bin"
	}
}

// ContentType returns the archive's response Content-Type.
func (f Format) ContentType() string {
	switch f {
	case FormatZip:
		return "application/zip"
	case FormatSVGBundle:
		return "image/svg+xml; charset=utf-8"
	case FormatJSONSprite:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Filename builds the Content-Disposition filename from spec.md §4.8:
// "icons-{YYYY-MM-DD}.{ext}".
func Filename(f Format, generated time.Time) string {
	return fmt.Sprintf("icons-%s.%s", generated.Format("2006-01-02"), f.Extension())
}

const windowSize = 10

// ResolveAll resolves items concurrently via the batch composer's
// per-entry resolution, returning only the icons that resolved
// successfully, in input order, plus a Summary counting how many of
// the original items failed in-band.
func ResolveAll(ctx context.Context, svc *iconsvc.Service, items []batch.ItemRequest) ([]batch.ItemResult, batch.Summary) {
	out := make([]batch.ItemResult, len(items))

	type job struct {
		idx  int
		item batch.ItemRequest
	}
	jobs := make(chan job)
	workers := windowSize
	if workers > len(items) {
		workers = len(items)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j.idx] = batch.ResolveOne(ctx, svc, j.item)
			}
		}()
	}
	for i, it := range items {
		jobs <- job{idx: i, item: it}
	}
	close(jobs)
	wg.Wait()

	successes := make([]batch.ItemResult, 0, len(out))
	summary := batch.Summary{Requested: len(items)}
	for _, r := range out {
		if r.Error != nil {
			summary.Failed++
			continue
		}
		summary.Successful++
		successes = append(successes, r)
	}
	return successes, summary
}

// entryName sanitizes an icon's archive entry/filename component
// (spec.md §4.8 "filenames sanitized to strip .. and \\").
func entryName(source, name string) string {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, "..", "")
		s = strings.ReplaceAll(s, "\\", "")
		return s
	}
	return fmt.Sprintf("%s-%s.svg", clean(source), clean(name))
}

// BuildZip writes a store-method (uncompressed) ZIP archive of entries
// to w, stopping once the 25 MiB uncompressed cap would be exceeded:
// the entry that would cross it and every entry after it are left out
// and returned by name.
func BuildZip(w io.Writer, entries []batch.ItemResult) (skipped []string, err error) {
	zw := zip.NewWriter(w)
	var total int64
	full := false
	now := time.Now()
	for _, e := range entries {
		body := []byte(e.SVG)
		if full || total+int64(len(body)) > MaxZipUncompressedBytes {
			full = true
			skipped = append(skipped, entryName(e.Source, e.Name))
			continue
		}
		fh := &zip.FileHeader{Name: entryName(e.Source, e.Name), Method: zip.Store, Modified: now}
		fw, ferr := zw.CreateHeader(fh)
		if ferr != nil {
			_ = zw.Close()
			return skipped, ferr
		}
		if _, ferr := fw.Write(body); ferr != nil {
			_ = zw.Close()
			return skipped, ferr
		}
		total += int64(len(body))
	}
	if err := zw.Close(); err != nil {
		return skipped, err
	}
	return skipped, nil
}

var svgRootRe = regexp.MustCompile(`(?s)<svg\b[^>]*>(.*)</svg>\s*$`)

// innerSVG extracts the content between the root <svg> tags, for
// embedding inside a <symbol>.
func innerSVG(svg string) string {
	m := svgRootRe.FindStringSubmatch(svg)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// BuildSVGBundle renders a single SVG document with one <symbol> per
// icon inside <defs> (spec.md §4.8).
func BuildSVGBundle(entries []batch.ItemResult) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" style="display:none"><defs>`)
	for _, e := range entries {
		id := fmt.Sprintf("%s-%s", e.Source, e.Name)
		fmt.Fprintf(&b, `<symbol id="%s" viewBox="0 0 24 24">%s</symbol>`, id, innerSVG(e.SVG))
	}
	b.WriteString(`</defs></svg>`)
	return b.String()
}

// SpriteIcon is one entry of a json-sprite's "icons" array.
type SpriteIcon struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Name   string `json:"name"`
	SVG    string `json:"svg"`
}

// Sprite is the full json-sprite document body (spec.md §4.8).
type Sprite struct {
	Format    string       `json:"format"`
	Version   string       `json:"version"`
	Generated string       `json:"generated"`
	Icons     []SpriteIcon `json:"icons"`
}

// spriteFormatVersion is the json-sprite schema version this composer emits.
const spriteFormatVersion = "1"

// BuildJSONSprite renders the json-sprite document for entries.
func BuildJSONSprite(entries []batch.ItemResult, generated time.Time) Sprite {
	icons := make([]SpriteIcon, 0, len(entries))
	for _, e := range entries {
		icons = append(icons, SpriteIcon{
			ID: fmt.Sprintf("%s-%s", e.Source, e.Name), Source: e.Source, Name: e.Name, SVG: e.SVG,
		})
	}
	return Sprite{
		Format: "json-sprite", Version: spriteFormatVersion,
		Generated: generated.UTC().Format(time.RFC3339), Icons: icons,
	}
}

// MarshalJSONSprite is a convenience wrapper for handlers writing the
// json-sprite response body directly.
func MarshalJSONSprite(entries []batch.ItemResult, generated time.Time) ([]byte, error) {
	return json.Marshal(BuildJSONSprite(entries, generated))
}
