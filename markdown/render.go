// Package markdown converts Markdown documents into HTML fragments for
// display inside a repository page.
package markdown

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const (
	DefaultStyle = "github"

	tabWidth = 4
)

var (
	// The document could not be serialized to HTML.
	ErrRender = errors.New("could not render document")

	// A URI scheme, as in `https:` or `mailto:`.
	schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)
)

// A rendered Markdown document.
type Document struct {
	// The text of the document's first top-level, level-1 heading.
	Title string

	// Whether or not a title was extracted.
	HasTitle bool

	// The rendered body. The title heading is not part of it.
	HTML string
}

// Where a document is being displayed. Relative links are rewritten against
// this location.
type Location struct {
	// A URL prefix placed before `/branch/...`, such as `/<repo>`. Empty in
	// single-repository mode.
	Base string

	// The reference the document was read from.
	Ref string

	// The directory containing the document, relative to the repository root.
	Dir string
}

// Renderer renders Markdown with GitHub-flavored extensions and fenced-code
// highlighting.
//
// A Renderer is safe for concurrent use. Every call parses its own document
// tree, so nothing is shared between renders.
type Renderer struct {
	md goldmark.Markdown
}

// Create a renderer that highlights code with the named chroma style.
//
// An empty style selects DefaultStyle.
func New(style string) (*Renderer, error) {
	if len(style) == 0 {
		style = DefaultStyle
	}

	if _, ok := styles.Registry[style]; !ok {
		return nil, errors.Errorf("unknown highlight style \"%s\"", style)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(
					chromahtml.TabWidth(tabWidth),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	return &Renderer{md: md}, nil
}

// Render a document found at the root of the given reference.
func (r *Renderer) Render(source []byte, refName string) (*Document, error) {
	return r.RenderAt(source, Location{Ref: refName})
}

// Render a document displayed at the given location.
//
// The first level-1 heading among the document's top-level blocks becomes the
// title and is removed from the body. Headings nested in other blocks are not
// considered. Every link whose target is relative is rewritten to
// `<base>/branch/<ref>/<path>`, while in-page anchors and URLs with a scheme
// are left alone.
func (r *Renderer) RenderAt(source []byte, loc Location) (*Document, error) {
	root := r.md.Parser().Parse(text.NewReader(source))

	doc := &Document{}
	doc.Title, doc.HasTitle = extractTitle(root, source)

	err := ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if link, ok := node.(*ast.Link); ok && entering {
			link.Destination = rewriteLink(link.Destination, loc)
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrRender, err.Error())
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, root); err != nil {
		return nil, errors.Wrap(ErrRender, err.Error())
	}

	doc.HTML = buf.String()

	return doc, nil
}

// Remove the first top-level, level-1 heading and return its text.
func extractTitle(root ast.Node, source []byte) (string, bool) {
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok || heading.Level != 1 {
			continue
		}

		var title strings.Builder
		collectText(heading, source, &title)
		root.RemoveChild(root, heading)

		return title.String(), true
	}

	return "", false
}

// Flatten the text of a node. Line breaks become a single space.
//
// Escapes and character references are decoded the way the HTML renderer
// decodes them, except inside code spans, which are kept literal.
func collectText(node ast.Node, source []byte, out *strings.Builder) {
	switch n := node.(type) {
	case *ast.Text:
		value := n.Segment.Value(source)
		if !inCodeSpan(n) {
			value = util.ResolveEntityNames(util.ResolveNumericReferences(util.UnescapePunctuations(value)))
		}

		out.Write(value)
		if n.SoftLineBreak() || n.HardLineBreak() {
			out.WriteByte(' ')
		}
		return

	case *ast.String:
		out.Write(n.Value)
		return
	}

	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		collectText(child, source, out)
	}
}

func inCodeSpan(node ast.Node) bool {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		if _, ok := parent.(*ast.CodeSpan); ok {
			return true
		}
	}

	return false
}

// Rewrite a relative link target to point into the repository browser.
//
// The result never climbs above the repository root.
func rewriteLink(destination []byte, loc Location) []byte {
	target := string(destination)

	if isExternal(target) {
		return destination
	}

	dir := loc.Dir
	if strings.HasPrefix(target, "/") {
		dir = ""
	}

	resolved := strings.TrimPrefix(path.Join("/", dir, target), "/")

	return []byte(loc.Base + "/branch/" + url.PathEscape(loc.Ref) + "/" + resolved)
}

// Return whether or not a link target must be left untouched.
func isExternal(target string) bool {
	return len(target) == 0 ||
		strings.HasPrefix(target, "#") ||
		strings.HasPrefix(target, "//") ||
		schemePattern.MatchString(target)
}
