package workspace

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Kind tells files and directories apart.
type Kind int

const (
	// KindFile is a regular file with text content.
	KindFile Kind = iota
	// KindDirectory is a directory placeholder.
	KindDirectory
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "file", "":
		return KindFile, nil
	case "directory", "dir":
		return KindDirectory, nil
	default:
		return KindFile, fmt.Errorf("unknown entry kind %q", s)
	}
}

// Entry is one item of the workspace.
type Entry struct {
	// Path is slash separated, relative to the workspace root, without a
	// trailing slash.
	Path string

	Kind Kind

	// Text is the file content. Binary files hold base64. Always empty for
	// directories.
	Text string
}

// File returns a file entry.
func File(p, text string) Entry {
	return Entry{Path: CleanPath(p), Kind: KindFile, Text: text}
}

// Directory returns a directory placeholder entry.
func Directory(p string) Entry {
	return Entry{Path: CleanPath(p), Kind: KindDirectory}
}

// IsDir reports whether e is a directory placeholder.
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// Name returns the wire name: the path, plus a trailing slash for
// directories.
func (e Entry) Name() string {
	if e.IsDir() {
		return e.Path + "/"
	}
	return e.Path
}

// Base returns the last path element.
func (e Entry) Base() string { return path.Base(e.Path) }

// IsBinary reports whether the file's text is base64 encoded.
func (e Entry) IsBinary() bool {
	return !e.IsDir() && IsBinaryName(e.Path)
}

// Content returns the bytes to put on disk.
func (e Entry) Content() ([]byte, error) {
	if e.IsDir() {
		return nil, nil
	}
	if e.IsBinary() {
		b, err := base64.StdEncoding.DecodeString(e.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", e.Path, err)
		}
		return b, nil
	}
	return []byte(e.Text), nil
}

// EncodeContent converts raw bytes read from disk into entry text for the
// file at p.
func EncodeContent(p string, data []byte) string {
	if IsBinaryName(p) {
		return base64.StdEncoding.EncodeToString(data)
	}
	return string(data)
}

var binaryExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".svg":  true,
	".webp": true,
}

// IsBinaryName classifies a file name by extension only.
func IsBinaryName(p string) bool {
	return binaryExtensions[strings.ToLower(path.Ext(p))]
}

// CleanPath normalizes p to the form stored in Entry.Path.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimPrefix(p, "./")
	return p
}

type wireEntry struct {
	Name string  `json:"name"`
	Text *string `json:"text"`
}

// MarshalJSON encodes e in the wire format.
func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{Name: e.Name()}
	if !e.IsDir() {
		text := e.Text
		w.Text = &text
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire format. A null text on a file name
// yields an empty file.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return fmt.Errorf("entry name is required")
	}
	if strings.HasSuffix(w.Name, "/") {
		*e = Directory(w.Name)
		return nil
	}
	text := ""
	if w.Text != nil {
		text = *w.Text
	}
	*e = File(w.Name, text)
	return nil
}
