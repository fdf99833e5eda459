package api

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/reviewboard/rb-browser/browse"
)

const (
	layoutsDir = "templates/layouts"
	pagesDir   = "templates/pages"
	cssDir     = "static/css"
)

var (
	//go:embed templates
	templateFS embed.FS

	//go:embed static/css/*.css
	staticFS embed.FS
)

// Parsed page templates, keyed by file name.
//
// Each page is parsed into its own copy of the layouts so that pages can
// define the same blocks without clobbering each other.
type pageTemplates map[string]*template.Template

var templateFuncs = template.FuncMap{
	"safeHTML": func(s string) template.HTML {
		return template.HTML(s)
	},
	"treeURL": func(repoURL, refName, filePath string) string {
		return browse.TreeURL(strings.TrimSuffix(repoURL, "/"), refName, filePath)
	},
	"formatTime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04")
	},
	"isoTime": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}

func loadTemplates() (pageTemplates, error) {
	layouts, err := template.New("layouts").Funcs(templateFuncs).ParseFS(templateFS, path.Join(layoutsDir, "*.html"))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse layouts")
	}

	pages, err := fs.Glob(templateFS, path.Join(pagesDir, "*.html"))
	if err != nil {
		return nil, errors.Wrap(err, "could not list pages")
	}

	tmpl := make(pageTemplates, len(pages))

	for _, page := range pages {
		clone, err := layouts.Clone()
		if err != nil {
			return nil, errors.Wrapf(err, "could not clone layouts for \"%s\"", page)
		}

		if _, err = clone.ParseFS(templateFS, page); err != nil {
			return nil, errors.Wrapf(err, "could not parse \"%s\"", page)
		}

		tmpl[path.Base(page)] = clone
	}

	return tmpl, nil
}

// Render the named page with the given data.
func (tmpl pageTemplates) Exec(w io.Writer, name string, data interface{}) error {
	t, ok := tmpl[name]
	if !ok {
		return errors.Errorf("unknown template \"%s\"", name)
	}

	return t.ExecuteTemplate(w, "base", struct {
		Data interface{}
	}{
		Data: data,
	})
}

// Return the named stylesheet.
func stylesheet(name string) ([]byte, bool) {
	if strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".css") {
		return nil, false
	}

	content, err := staticFS.ReadFile(path.Join(cssDir, name))
	if err != nil {
		return nil, false
	}

	return content, true
}
