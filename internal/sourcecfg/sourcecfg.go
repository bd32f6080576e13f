// Package sourcecfg holds the static per-source configuration table
// (spec.md §3 "Source config", §9 "Dynamic dispatch across sources").
// Dispatch across sources is a plain map lookup, not a class hierarchy:
// each source declares its variants, default variant, and an optional
// variant-to-path mapping function for sources whose non-default
// variants live at a different blob-store path (spec.md §9 Open
// Question 2 — heroicons and ionicons get mapping functions; a source
// without one serves every variant an icon declares from that icon's
// own path).
//
// The table can also be loaded/overridden from YAML, following the
// teacher's RepoConfig YAML idiom (internal/releaseparty/config.go).
package sourcecfg

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"iconserve/internal/model"
)

// yamlSource mirrors model.SourceConfig for (de)serialization; the
// VariantPath function isn't representable in YAML, so it's attached
// post-load by name in Defaults/Merge.
type yamlSource struct {
	ID             string   `yaml:"id"`
	DisplayName    string   `yaml:"display_name"`
	Description    string   `yaml:"description"`
	Website        string   `yaml:"website"`
	Repository     string   `yaml:"repository"`
	LicenseType    string   `yaml:"license_type"`
	LicenseURL     string   `yaml:"license_url"`
	Variants       []string `yaml:"variants"`
	DefaultVariant string   `yaml:"default_variant"`
}

// ParseYAML parses a list of source configs from YAML bytes (the
// `sources:` document used for ICONSERVE_SOURCES_FILE overrides).
func ParseYAML(b []byte) (map[string]model.SourceConfig, error) {
	var doc struct {
		Sources []yamlSource `yaml:"sources"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]model.SourceConfig, len(doc.Sources))
	for _, s := range doc.Sources {
		id := strings.ToLower(strings.TrimSpace(s.ID))
		if id == "" {
			return nil, fmt.Errorf("sourcecfg: source missing id")
		}
		variants := make([]model.Variant, 0, len(s.Variants))
		for _, v := range s.Variants {
			variants = append(variants, model.Variant(strings.ToLower(strings.TrimSpace(v))))
		}
		if len(variants) == 0 {
			variants = []model.Variant{model.VariantDefault}
		}
		def := model.Variant(strings.ToLower(strings.TrimSpace(s.DefaultVariant)))
		if def == "" {
			def = model.VariantDefault
		}
		out[id] = model.SourceConfig{
			ID:             id,
			DisplayName:    s.DisplayName,
			Description:    s.Description,
			Website:        s.Website,
			Repository:     s.Repository,
			License:        model.License{Type: s.LicenseType, URL: s.LicenseURL},
			Variants:       variants,
			DefaultVariant: def,
		}
	}
	return out, nil
}

// Defaults returns the built-in seed table for the curated corpus named
// in spec.md's examples (lucide, heroicons, material, ionicons). This
// is the table used when no override file is configured.
func Defaults() map[string]model.SourceConfig {
	m := map[string]model.SourceConfig{
		"lucide": {
			ID: "lucide", DisplayName: "Lucide",
			Description: "Beautiful & consistent icon toolkit",
			Website:     "https://lucide.dev", Repository: "https://github.com/lucide-icons/lucide",
			License:        model.License{Type: "ISC", URL: "https://github.com/lucide-icons/lucide/blob/main/LICENSE"},
			Variants:       []model.Variant{model.VariantDefault},
			DefaultVariant: model.VariantDefault,
		},
		"material": {
			ID: "material", DisplayName: "Material Symbols",
			Description: "Google's Material Design icon set",
			Website:     "https://fonts.google.com/icons", Repository: "https://github.com/google/material-design-icons",
			License:        model.License{Type: "Apache-2.0", URL: "https://www.apache.org/licenses/LICENSE-2.0"},
			Variants:       []model.Variant{model.VariantOutline, model.VariantFilled},
			DefaultVariant: model.VariantOutline,
		},
		"heroicons": {
			ID: "heroicons", DisplayName: "Heroicons",
			Description: "Hand-crafted SVG icons by the makers of Tailwind CSS",
			Website:     "https://heroicons.com", Repository: "https://github.com/tailwindlabs/heroicons",
			License:        model.License{Type: "MIT", URL: "https://github.com/tailwindlabs/heroicons/blob/master/LICENSE"},
			Variants:       []model.Variant{model.VariantOutline, model.VariantSolid, model.VariantMini},
			DefaultVariant: model.VariantOutline,
			VariantPath:    heroiconsVariantPath,
		},
		"ionicons": {
			ID: "ionicons", DisplayName: "Ionicons",
			Description: "Premium hand-crafted icons",
			Website:     "https://ionic.io/ionicons", Repository: "https://github.com/ionic-team/ionicons",
			License:        model.License{Type: "MIT", URL: "https://github.com/ionic-team/ionicons/blob/main/LICENSE"},
			Variants:       []model.Variant{model.VariantOutline, model.VariantSolid},
			DefaultVariant: model.VariantOutline,
			VariantPath:    ioniconsVariantPath,
		},
	}
	return m
}

// heroiconsVariantPath maps (name, variant) to heroicons' directory
// layout: "outline/<name>.svg", "solid/<name>.svg", "mini/<name>.svg".
func heroiconsVariantPath(name string, v model.Variant) (string, bool) {
	switch v {
	case model.VariantOutline, model.VariantSolid, model.VariantMini:
		return fmt.Sprintf("heroicons/%s/%s.svg", v, name), true
	case model.VariantDefault:
		return fmt.Sprintf("heroicons/outline/%s.svg", name), true
	default:
		return "", false
	}
}

// ioniconsVariantPath maps (name, variant) to ionicons' suffix
// convention: outline/default icons have no suffix, solid icons end in
// "-sharp".
func ioniconsVariantPath(name string, v model.Variant) (string, bool) {
	switch v {
	case model.VariantOutline, model.VariantDefault:
		return fmt.Sprintf("ionicons/%s.svg", name), true
	case model.VariantSolid:
		return fmt.Sprintf("ionicons/%s-sharp.svg", name), true
	default:
		return "", false
	}
}

// Merge overlays override into base, keyed by source id.
func Merge(base, override map[string]model.SourceConfig) map[string]model.SourceConfig {
	out := make(map[string]model.SourceConfig, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if v.VariantPath == nil {
			if b, ok := base[k]; ok {
				v.VariantPath = b.VariantPath
			}
		}
		out[k] = v
	}
	return out
}
