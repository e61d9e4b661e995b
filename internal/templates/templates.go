// Package templates holds the storefront HTML templates and static assets.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed layout/*.tmpl partials/*.tmpl pages/*.tmpl
var files embed.FS

//go:embed assets
var assets embed.FS

// Set is the parsed template collection. Each page is parsed into its own clone of the
// layout so pages can all define "content".
type Set struct {
	base  *template.Template
	pages map[string]*template.Template
}

// Parse parses the embedded templates.
func Parse() (*Set, error) {
	return ParseFS(files)
}

// ParseFS parses templates from fsys, which must contain layout/, partials/ and pages/.
func ParseFS(fsys fs.FS) (*Set, error) {
	base, err := template.New("_root").ParseFS(fsys, "layout/*.tmpl", "partials/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pageFiles, err := fs.Glob(fsys, "pages/*.tmpl")
	if err != nil {
		return nil, err
	}
	if len(pageFiles) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		name := strings.TrimSuffix(path.Base(file), ".tmpl")
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(fsys, file); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = clone
	}
	return &Set{base: base, pages: pages}, nil
}

// Pages lists the page names in sorted order.
func (s *Set) Pages() []string {
	names := make([]string, 0, len(s.pages))
	for name := range s.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Page renders the layout around the named page. Output is buffered so a template error
// never leaves a half-written response.
func (s *Set) Page(w io.Writer, name string, data any) error {
	t, ok := s.pages[name]
	if !ok {
		return fmt.Errorf("page %q not found", name)
	}
	return execute(w, t, "base", data)
}

// Fragment renders a single partial template.
func (s *Set) Fragment(w io.Writer, name string, data any) error {
	if s.base.Lookup(name) == nil {
		return fmt.Errorf("fragment %q not found", name)
	}
	return execute(w, s.base, name, data)
}

// HasFragment reports whether a partial named name exists.
func (s *Set) HasFragment(name string) bool {
	return s.base.Lookup(name) != nil
}

// Assets returns the static asset tree rooted at assets/.
func Assets() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

func execute(w io.Writer, t *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
