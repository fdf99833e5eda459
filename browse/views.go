package browse

import (
	"github.com/reviewboard/rb-browser/markdown"
	"github.com/reviewboard/rb-browser/repositories"
)

// Identifying information about a repository.
type RepositorySummary struct {
	Name        string
	Description string
	Owner       string

	// The URL of the repository's index page.
	URL string
}

// The data for a repository's index page.
type IndexView struct {
	Repository RepositorySummary

	// The reference that links on the page point into. This is the default
	// branch, the HEAD commit if HEAD is detached, or the first branch if
	// HEAD names a branch that does not exist.
	Ref string

	Branches []string
	Tags     []string

	// The most recent commits reachable from HEAD, newest first.
	Commits []repositories.CommitInfo

	// The rendered README at the root of HEAD, if there is one.
	Readme *ReadmeView

	// A shell command that clones the repository.
	CloneCommand string

	// Whether or not the repository has no commits yet.
	Empty bool
}

// A README displayed below a listing.
type ReadmeView struct {
	Name string

	// The rendered document, for Markdown READMEs.
	Document *markdown.Document

	// The raw text, for plain-text READMEs.
	Text string
}

// The data for a page showing a path at a reference.
//
// Exactly one of File, Directory, or Unsupported is set, according to Kind.
type PathView struct {
	Repository RepositorySummary

	Ref  string
	Path string

	// Links to every directory leading to the path, starting at the root.
	Breadcrumbs []Breadcrumb

	// The URL of the containing directory. Empty at the root.
	ParentURL string

	Kind repositories.EntryKind

	File        *FileView
	Directory   *DirectoryView
	Unsupported *UnsupportedView
}

// One step of a path.
type Breadcrumb struct {
	Name string
	URL  string
}

// A file to display.
type FileView struct {
	Name string
	Size int64

	// The decoded content. Empty when Binary is set.
	Text string

	// Whether or not the content is not valid UTF-8 text.
	Binary bool

	// The rendered document, for Markdown files.
	Document *markdown.Document

	// The URL serving the file's bytes.
	RawURL string
}

// A directory to display.
type DirectoryView struct {
	Entries []DirectoryEntry

	// The README inside the directory, if any.
	Readme *ReadmeView
}

// An entry in a directory listing.
type DirectoryEntry struct {
	Name string
	Kind repositories.EntryKind
	URL  string
}

// Return whether or not the entry is a directory.
func (e DirectoryEntry) IsDir() bool {
	return e.Kind == repositories.TreeEntry
}

// An entry that cannot be displayed, such as a submodule or symbolic link.
type UnsupportedView struct {
	Name string

	// A human-readable description of the entry's kind.
	Description string
}
