// Package assets holds the content script bundle injected into frames.
package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed scripts/*.js
var scripts embed.FS

// Load returns the source of a bundled script. Names are the extension-style
// paths used by the frames package, e.g. "/scripts/try_xpath_content.js".
func Load(name string) (string, error) {
	clean := strings.TrimPrefix(path.Clean(name), "/")
	data, err := fs.ReadFile(scripts, clean)
	if err != nil {
		return "", fmt.Errorf("loading script %q: %w", name, err)
	}
	return string(data), nil
}

// Names lists every bundled script in load-path form.
func Names() []string {
	entries, err := fs.ReadDir(scripts, "scripts")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, "/scripts/"+e.Name())
	}
	sort.Strings(names)
	return names
}
