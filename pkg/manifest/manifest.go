// Package manifest reads and writes the sync manifest, the JSON record of
// where every vendored definition came from upstream and what its content
// hash was at the last sync.
package manifest

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jingkaihe/curate/pkg/logger"
)

// DefaultPath is where the manifest lives relative to the repository root
const DefaultPath = "sync-manifest.json"

// WildcardField marks a definition as fully owned locally.
const WildcardField = "*"

//go:embed data/sync-manifest.schema.json
var schemaFS embed.FS

const schemaFile = "data/sync-manifest.schema.json"

// Source is an upstream repository definitions are synced from.
type Source struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	URL    string `json:"url"`
}

// ManualOverride records a local edit that a resync must not clobber.
type ManualOverride struct {
	Field        string `json:"field"`
	Reason       string `json:"reason"`
	Original     any    `json:"original,omitempty"`
	OverriddenAt string `json:"overridden_at"`
}

// Definition is the provenance of one vendored definition.
type Definition struct {
	Source         string `json:"source"`
	UpstreamPath   string `json:"upstream_path"`
	UpstreamCommit string `json:"upstream_commit"`
	SyncedAt       string `json:"synced_at"`
	Notes          string `json:"notes"`
	// Files lists paths relative to UpstreamPath for multi-file skills.
	// Order is significant: the content hash covers them in this order.
	Files               []string         `json:"files,omitempty"`
	UpstreamContentHash string           `json:"upstream_content_hash,omitempty"`
	ManualOverrides     []ManualOverride `json:"manual_overrides,omitempty"`
}

// HasWildcardOverride reports whether the definition must never be resynced.
func (d Definition) HasWildcardOverride() bool {
	for _, o := range d.ManualOverrides {
		if o.Field == WildcardField {
			return true
		}
	}
	return false
}

// ContentPaths returns the upstream paths whose content makes up the
// definition, in hashing order.
func (d Definition) ContentPaths() []string {
	if len(d.Files) == 0 {
		return []string{d.UpstreamPath}
	}
	paths := make([]string, len(d.Files))
	for i, f := range d.Files {
		paths[i] = strings.TrimSuffix(d.UpstreamPath, "/") + "/" + strings.TrimPrefix(f, "/")
	}
	return paths
}

// Manifest is the root of the sync manifest document.
type Manifest struct {
	Schema           string                `json:"$schema,omitempty"`
	ConverterVersion *int                  `json:"converter_version,omitempty"`
	Sources          map[string]Source     `json:"sources"`
	Definitions      map[string]Definition `json:"definitions"`
}

// New returns an empty manifest stamped with converterVersion.
func New(converterVersion int) *Manifest {
	return &Manifest{
		ConverterVersion: &converterVersion,
		Sources:          map[string]Source{},
		Definitions:      map[string]Definition{},
	}
}

// Keys returns the definition keys in sorted order.
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Definitions))
	for k := range m.Definitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ForSource returns a shallow copy holding only the definitions synced
// from the named source.
func (m *Manifest) ForSource(name string) *Manifest {
	out := &Manifest{
		Schema:           m.Schema,
		ConverterVersion: m.ConverterVersion,
		Sources:          map[string]Source{},
		Definitions:      map[string]Definition{},
	}
	if src, ok := m.Sources[name]; ok {
		out.Sources[name] = src
	}
	for k, d := range m.Definitions {
		if d.Source == name {
			out.Definitions[k] = d
		}
	}
	return out
}

// MarkSynced records a successful resync of key.
func (m *Manifest) MarkSynced(key, commit, contentHash string, at time.Time) error {
	d, ok := m.Definitions[key]
	if !ok {
		return errors.Errorf("definition '%s' is not tracked in the manifest", key)
	}
	d.UpstreamCommit = commit
	d.UpstreamContentHash = contentHash
	d.SyncedAt = at.UTC().Format(time.RFC3339)
	m.Definitions[key] = d
	return nil
}

// Read loads the manifest at path. A missing, unparsable or structurally
// invalid file yields nil; the manifest is optional so these are logged,
// not returned.
func Read(ctx context.Context, path string) *Manifest {
	log := logger.G(ctx).WithField("path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("no sync manifest found")
		} else {
			log.WithError(err).Warn("failed to read sync manifest")
		}
		return nil
	}

	if err := ValidateBytes(data); err != nil {
		log.WithError(err).Warn("ignoring invalid sync manifest")
		return nil
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		log.WithError(err).Warn("ignoring undecodable sync manifest")
		return nil
	}
	return &m
}

// Validate is a structural check of v, which may be raw JSON bytes, a
// *Manifest or any value that marshals to JSON. Referential integrity
// between definitions and sources is not checked.
func Validate(v any) bool {
	var data []byte
	switch t := v.(type) {
	case []byte:
		data = t
	case json.RawMessage:
		data = t
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return false
		}
	}
	return ValidateBytes(data) == nil
}

// ValidateBytes validates raw manifest JSON against the embedded schema.
func ValidateBytes(data []byte) error {
	schemaData, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		return errors.Wrap(err, "failed to read embedded manifest schema")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaData),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.Wrap(err, "manifest is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return errors.Errorf("manifest schema validation failed: %s", strings.Join(msgs, "; "))
}

// Marshal renders the manifest deterministically: two-space indentation,
// sorted map keys and a trailing newline.
func Marshal(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, errors.Wrap(err, "failed to encode manifest")
	}
	return buf.Bytes(), nil
}

// Write stores the manifest at path, replacing any existing file.
func Write(path string, m *Manifest) error {
	if m.Sources == nil {
		m.Sources = map[string]Source{}
	}
	if m.Definitions == nil {
		m.Definitions = map[string]Definition{}
	}

	data, err := Marshal(m)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create manifest directory '%s'", dir)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".sync-manifest-*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary manifest file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write manifest")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close manifest")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "failed to set manifest permissions")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move manifest into place at '%s'", path)
	}
	return nil
}

// FindStaleEntries returns, sorted, the manifest keys that are missing
// from existingKeys. The manifest is not modified.
func FindStaleEntries(m *Manifest, existingKeys []string) []string {
	stale := []string{}
	if m == nil {
		return stale
	}
	existing := make(map[string]struct{}, len(existingKeys))
	for _, k := range existingKeys {
		existing[k] = struct{}{}
	}
	for _, k := range m.Keys() {
		if _, ok := existing[k]; !ok {
			stale = append(stale, k)
		}
	}
	return stale
}
