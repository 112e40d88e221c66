package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type envelope struct {
	GeneratedAt string `json:"generated_at"`
	View        any    `json:"view"`
}

// emit writes the view to <out>/<name>.json, or to stdout when no output
// directory is configured.
func emit(name string, view any) error {
	doc := envelope{GeneratedAt: time.Now().UTC().Format(time.RFC3339), View: view}
	if outDir == "" {
		return encode(os.Stdout, doc)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(outDir, name+".json"), doc)
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return encode(file, value)
}

func encode(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// normalizeCodes upper-cases, drops blanks and repeats. Selection toggles,
// so a repeated code would deselect itself.
func normalizeCodes(values []string) []string {
	items := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, item := range values {
		code := strings.ToUpper(strings.TrimSpace(item))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		items = append(items, code)
	}
	return items
}
