package snapshot

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vzcode/vzsync/internal/workspace"
)

func sampleDocument() *workspace.Document {
	doc := workspace.New()
	doc.Files["11111111"] = workspace.File("index.html", "<body>\n  <p>Hello 👋</p>\n</body>\n")
	doc.Files["22222222"] = workspace.Directory("assets")
	doc.Files["33333333"] = workspace.File("assets/logo.png", "iVBORw0KGgo=")
	doc.Files["44444444"] = workspace.File("empty.txt", "")
	doc.IsInteracting = true
	return doc
}

func TestRoundTrip(t *testing.T) {
	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			for name, doc := range map[string]*workspace.Document{
				"sample": sampleDocument(),
				"empty":  workspace.New(),
			} {
				data, err := Marshal(doc, f)
				if err != nil {
					t.Fatalf("%s: Marshal() failed: %v", name, err)
				}
				got, err := Decode(bytes.NewReader(data), f)
				if err != nil {
					t.Fatalf("%s: Decode() failed: %v\n%s", name, err, data)
				}
				if diff := cmp.Diff(doc, got); diff != "" {
					t.Errorf("%s: round trip mismatch (-want +got):\n%s", name, diff)
				}
			}
		})
	}
}

func TestManifestIsSortedByName(t *testing.T) {
	data, err := Marshal(sampleDocument(), FormatYAML)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	out := string(data)
	order := []string{"name: assets\n", "name: assets/logo.png", "name: empty.txt", "name: index.html"}
	last := -1
	for _, s := range order {
		i := strings.Index(out, s)
		if i < 0 || i < last {
			t.Fatalf("%q out of order in:\n%s", s, out)
		}
		last = i
	}
	if !strings.Contains(out, "kind: directory") {
		t.Errorf("directory kind missing:\n%s", out)
	}
}

func TestJSONUsesWireFormat(t *testing.T) {
	doc := workspace.New()
	doc.Files["22222222"] = workspace.Directory("assets")
	data, err := Marshal(doc, FormatJSON)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if !strings.Contains(string(data), `"name": "assets/"`) || !strings.Contains(string(data), `"text": null`) {
		t.Errorf("unexpected JSON:\n%s", data)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		input   string
		wantErr error
	}{
		{"duplicate id", FormatYAML, "entries:\n  - {id: '1', name: a, kind: file}\n  - {id: '1', name: b, kind: file}\n", ErrDuplicateID},
		{"bad kind", FormatTOML, "[[entries]]\nid = \"1\"\nname = \"a\"\nkind = \"socket\"\n", nil},
		{"missing name", FormatYAML, "entries:\n  - {id: '1', kind: file}\n", nil},
		{"bad json", FormatJSON, "{", nil},
		{"unknown format", Format("xml"), "", ErrUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), tt.format)
			if err == nil {
				t.Fatal("Decode() succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"snap.json", FormatJSON, false},
		{"dir/snap.YAML", FormatYAML, false},
		{"snap.yml", FormatYAML, false},
		{"snap.toml", FormatTOML, false},
		{"snap.xml", "", true},
		{"snap", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatFromPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"snap.json", "snap.yaml", "snap.toml"} {
		p := filepath.Join(dir, name)
		if err := WriteFile(p, sampleDocument()); err != nil {
			t.Fatalf("WriteFile(%s) failed: %v", name, err)
		}
		got, err := ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile(%s) failed: %v", name, err)
		}
		if diff := cmp.Diff(sampleDocument(), got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("ReadFile() on missing file succeeded")
	}
}
