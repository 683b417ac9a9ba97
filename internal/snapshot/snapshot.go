// Package snapshot reads and writes workspace documents as files.
//
// JSON uses the wire format of the document. YAML and TOML use a manifest
// listing entries sorted by path, which is easier to read and review:
//
//	interacting = false
//
//	[[entries]]
//	id = "48213377"
//	name = "index.html"
//	kind = "file"
//	text = "<html></html>"
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vzcode/vzsync/internal/workspace"
)

// Format names a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML}

var (
	// ErrUnknownFormat is returned for unsupported format names and file
	// extensions.
	ErrUnknownFormat = errors.New("unknown snapshot format")

	// ErrDuplicateID is returned when a manifest lists an ID twice.
	ErrDuplicateID = errors.New("duplicate entry id")
)

// ParseFormat converts a format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(p string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(p), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, p)
	}
	return ParseFormat(ext)
}

type record struct {
	ID   string `yaml:"id" toml:"id"`
	Name string `yaml:"name" toml:"name"`
	Kind string `yaml:"kind" toml:"kind"`
	Text string `yaml:"text,omitempty" toml:"text,omitempty"`
}

type manifest struct {
	Interacting bool     `yaml:"interacting,omitempty" toml:"interacting"`
	Entries     []record `yaml:"entries" toml:"entries"`
}

func toManifest(doc *workspace.Document) manifest {
	m := manifest{Interacting: doc.IsInteracting, Entries: make([]record, 0, len(doc.Files))}
	for id, e := range doc.Files {
		m.Entries = append(m.Entries, record{
			ID:   string(id),
			Name: e.Path,
			Kind: e.Kind.String(),
			Text: e.Text,
		})
	}
	sort.Slice(m.Entries, func(i, j int) bool {
		if m.Entries[i].Name != m.Entries[j].Name {
			return m.Entries[i].Name < m.Entries[j].Name
		}
		return m.Entries[i].ID < m.Entries[j].ID
	})
	return m
}

func fromManifest(m manifest) (*workspace.Document, error) {
	doc := workspace.New()
	doc.IsInteracting = m.Interacting
	for _, r := range m.Entries {
		if r.ID == "" || r.Name == "" {
			return nil, fmt.Errorf("entry %q: id and name are required", r.Name)
		}
		kind, err := workspace.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", r.ID, err)
		}
		id := workspace.FileID(r.ID)
		if _, ok := doc.Files[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		if kind == workspace.KindDirectory {
			doc.Files[id] = workspace.Directory(r.Name)
		} else {
			doc.Files[id] = workspace.File(r.Name, r.Text)
		}
	}
	return doc, nil
}

// Encode writes doc to w in format f.
func Encode(w io.Writer, doc *workspace.Document, f Format) error {
	if doc == nil {
		doc = workspace.New()
	}
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toManifest(doc)); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(toManifest(doc)); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Decode reads a document in format f from r.
func Decode(r io.Reader, f Format) (*workspace.Document, error) {
	switch f {
	case FormatJSON:
		doc := workspace.New()
		if err := json.NewDecoder(r).Decode(doc); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
		if doc.Files == nil {
			doc.Files = make(map[workspace.FileID]workspace.Entry)
		}
		return doc, nil
	case FormatYAML:
		var m manifest
		if err := yaml.NewDecoder(r).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
		return fromManifest(m)
	case FormatTOML:
		var m manifest
		if _, err := toml.NewDecoder(r).Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode toml: %w", err)
		}
		return fromManifest(m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Marshal returns doc encoded in format f.
func Marshal(doc *workspace.Document, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFile decodes the snapshot at p, picking the format from its
// extension.
func ReadFile(p string) (*workspace.Document, error) {
	f, err := FormatFromPath(p)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	doc, err := Decode(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return doc, nil
}

// WriteFile encodes doc to p, picking the format from its extension.
func WriteFile(p string, doc *workspace.Document) error {
	f, err := FormatFromPath(p)
	if err != nil {
		return err
	}
	data, err := Marshal(doc, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
