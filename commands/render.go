package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/reviewboard/rb-browser/markdown"
)

// Options for rendering a Markdown file from disk.
type RenderOptions struct {
	// The reference relative links point into.
	Ref string

	// The chroma style used for fenced code.
	Style string
}

// Render a Markdown file and write the result.
//
// The extracted title, if any, is written on the first line, followed by a
// blank line and the HTML body.
func Render(path string, opts RenderOptions, w io.Writer) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "could not read \"%s\"", path)
	}

	renderer, err := markdown.New(opts.Style)
	if err != nil {
		return err
	}

	dir := filepath.ToSlash(filepath.Dir(path))
	if dir == "." || filepath.IsAbs(path) {
		dir = ""
	}

	doc, err := renderer.RenderAt(content, markdown.Location{
		Ref: opts.Ref,
		Dir: dir,
	})
	if err != nil {
		return err
	}

	if doc.HasTitle {
		fmt.Fprintf(w, "%s\n\n", doc.Title)
	}

	_, err = io.WriteString(w, doc.HTML)

	return err
}
