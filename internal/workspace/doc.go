// Package workspace defines the in-memory workspace document shared with
// collaborators.
//
// # Overview
//
// A workspace is a flat map from opaque file IDs to entries. Each entry is
// either a file (with text content) or a directory placeholder. Hierarchy
// is implied by slash-separated paths, so renaming a directory means
// renaming every entry under it.
//
// # Wire Format
//
// The document travels as JSON. Directories carry a trailing slash in
// their name and a null text:
//
//	{
//	  "files": {
//	    "48213377": {"name": "index.html", "text": "<html></html>"},
//	    "90211573": {"name": "assets/", "text": null},
//	    "10427788": {"name": "assets/logo.png", "text": "iVBORw0KGgo..."}
//	  },
//	  "isInteracting": true
//	}
//
// Inside Go code the trailing slash is never part of Entry.Path; the Kind
// field says what an entry is. Conversion happens in MarshalJSON and
// UnmarshalJSON only.
//
// # Binary Files
//
// Files whose extension is one of png, jpg, jpeg, gif, bmp, svg or webp
// (case-insensitive) hold base64 text. Use Entry.Content to obtain raw
// bytes and EncodeContent to go the other way.
//
// # Usage
//
//	doc := workspace.New()
//	id := doc.Add(workspace.File("src/main.go", "package main\n"))
//	doc.Add(workspace.Directory("src"))
//	e, ok := doc.Files[id]
package workspace
