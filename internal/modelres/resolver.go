// Package modelres resolves note-model folders: it parses the model
// configuration, matches template files against the template grammar, and
// validates the required artifacts.
package modelres

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/starford/perthro/internal/deck"
	"github.com/starford/perthro/internal/report"
	"github.com/starford/perthro/internal/storage"
)

// templateRe is the template filename grammar:
// <Name>+<Front|Back>[.browser].hbs
var templateRe = regexp.MustCompile(`^([^+]+)\+(Front|Back)(\.browser)?\` + deck.TemplateExt + `$`)

// Resolve parses one model folder into a NoteModel. Violations are
// collected rather than returned as errors; the returned error is reserved
// for I/O failures reading the folder itself.
func Resolve(p storage.Provider, folder string) (*deck.NoteModel, []report.Violation, error) {
	names, err := p.List(folder)
	if err != nil {
		return nil, nil, fmt.Errorf("modelres: list %s: %w", folder, err)
	}

	model := &deck.NoteModel{
		Name:      strings.TrimSuffix(folder, deck.ModelSuffix),
		Folder:    folder,
		Templates: make(map[deck.TemplateKey]deck.Template),
	}
	var violations []report.Violation

	cfg, v := parseConfig(p, folder, names)
	violations = append(violations, v...)
	if cfg == nil {
		// Unparsable or missing configuration is fatal for this model.
		return nil, violations, nil
	}
	model.Config = *cfg
	if cfg.Name != "" {
		model.Name = cfg.Name
	}

	haveStylesheet := false
	for _, name := range names {
		rel := path.Join(folder, name)
		switch name {
		case deck.ConfigFile:
			continue
		case deck.StylesheetFile:
			haveStylesheet = true
			if data, err := p.Read(rel); err == nil {
				model.Stylesheet = string(data)
			}
			continue
		case deck.PreambleFile:
			if data, err := p.Read(rel); err == nil {
				model.Preamble = string(data)
			}
			continue
		case deck.PostambleFile:
			if data, err := p.Read(rel); err == nil {
				model.Postamble = string(data)
			}
			continue
		}

		m := templateRe.FindStringSubmatch(name)
		if m == nil {
			violations = append(violations, report.New(report.CodeUnrecognizedArtifact, rel,
				"file does not match any model artifact or the template grammar"))
			continue
		}
		tpl := deck.Template{
			Name:    m[1],
			Side:    deck.Side(m[2]),
			Variant: deck.Standard,
		}
		if m[3] != "" {
			tpl.Variant = deck.Browser
		}
		if data, err := p.Read(rel); err == nil {
			tpl.Source = string(data)
		}
		model.Templates[deck.TemplateKey{Name: tpl.Name, Side: tpl.Side, Variant: tpl.Variant}] = tpl
	}

	if !haveStylesheet {
		violations = append(violations, report.New(report.CodeMissingStylesheet, folder,
			"model is missing its required stylesheet %q", deck.StylesheetFile))
	}

	// Every declared template name needs a Front and a Back, in at least
	// the standard form.
	for _, name := range model.TemplateNames() {
		for _, side := range []deck.Side{deck.Front, deck.Back} {
			if _, ok := model.Templates[deck.TemplateKey{Name: name, Side: side, Variant: deck.Standard}]; !ok {
				violations = append(violations, report.New(report.CodeMissingRequiredSide, folder,
					"template %q has no standard %s side", name, side))
			}
		}
	}

	return model, violations, nil
}

// parseConfig decodes config.toml. The engine interprets only the keys it
// owns; everything else is preserved, in file order, as opaque options for
// the rendering engine.
func parseConfig(p storage.Provider, folder string, names []string) (*deck.ModelConfig, []report.Violation) {
	rel := path.Join(folder, deck.ConfigFile)

	found := false
	for _, n := range names {
		if n == deck.ConfigFile {
			found = true
			break
		}
	}
	if !found {
		return nil, []report.Violation{report.New(report.CodeUnparsableConfig, rel,
			"model has no %s", deck.ConfigFile)}
	}

	data, err := p.Read(rel)
	if err != nil {
		return nil, []report.Violation{report.New(report.CodeUnparsableConfig, rel,
			"read: %v", err)}
	}

	var raw map[string]toml.Primitive
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, []report.Violation{report.New(report.CodeUnparsableConfig, rel,
			"decode: %v", err)}
	}

	cfg := &deck.ModelConfig{}
	var violations []report.Violation

	decode := func(key string, target any) bool {
		prim, ok := raw[key]
		if !ok {
			return false
		}
		if err := md.PrimitiveDecode(prim, target); err != nil {
			violations = append(violations, report.New(report.CodeUnparsableConfig, rel,
				"key %q: %v", key, err))
			return false
		}
		return true
	}

	decode("name", &cfg.Name)
	decode("sort_field", &cfg.SortField)
	decode("tags", &cfg.Tags)
	decode("fields", &cfg.Fields)

	var rawVersion string
	if decode("schema_version", &rawVersion) {
		ver, err := semver.NewVersion(rawVersion)
		if err != nil {
			violations = append(violations, report.New(report.CodeUnparsableConfig, rel,
				"schema_version %q: %v", rawVersion, err))
		} else {
			cfg.SchemaVersion = ver
		}
	}

	// Duplicate declared field names break the ordered-set invariant.
	seen := make(map[string]struct{}, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if _, dup := seen[f.Name]; dup {
			violations = append(violations, report.New(report.CodeUnparsableConfig, rel,
				"duplicate field name %q", f.Name))
		}
		seen[f.Name] = struct{}{}
	}

	// Preserve unknown top-level keys in declaration order.
	owned := map[string]struct{}{
		"name": {}, "sort_field": {}, "tags": {}, "fields": {}, "schema_version": {},
	}
	for _, key := range md.Keys() {
		if len(key) != 1 {
			continue
		}
		k := key[0]
		if _, ok := owned[k]; ok {
			continue
		}
		var val any
		if err := md.PrimitiveDecode(raw[k], &val); err != nil {
			continue
		}
		cfg.Extra = append(cfg.Extra, deck.Option{Key: k, Value: val})
	}

	return cfg, violations
}
