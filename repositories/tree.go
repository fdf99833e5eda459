package repositories

import (
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

// The kind of a tree entry.
//
// The set is closed: every consumer of an Entry must handle all three.
type EntryKind int

const (
	BlobEntry EntryKind = iota
	TreeEntry
	UnsupportedEntry
)

func (kind EntryKind) String() string {
	switch kind {
	case BlobEntry:
		return "blob"
	case TreeEntry:
		return "tree"
	default:
		return "unsupported"
	}
}

// The result of looking up a path in a commit.
type Entry struct {
	Kind EntryKind

	// The name of the entry. This is empty for the root tree.
	Name string

	// The full, slash-separated path of the entry within the commit.
	Path string

	// The file mode recorded in the parent tree.
	Mode filemode.FileMode

	// Set when Kind is BlobEntry.
	Blob *Blob

	// Set when Kind is TreeEntry.
	Tree *TreeListing
}

// The contents of a file.
type Blob struct {
	Content []byte
	Size    int64
}

// The immediate children of a directory.
type TreeListing struct {
	Entries []ListingEntry
}

// A child in a TreeListing.
type ListingEntry struct {
	Name string
	Kind EntryKind
	Mode filemode.FileMode
}

// Look up a slash-separated path in the commit's tree.
//
// An empty path denotes the root tree. The path is walked one segment at a
// time. If a segment is missing, or a file or submodule is asked to act as a
// directory, the returned error wraps ErrPathNotFound and names the full
// requested path.
//
// Submodules and symbolic links are returned as UnsupportedEntry instead of
// failing.
func (repo *GitRepository) Lookup(commit *object.Commit, path string) (*Entry, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, errors.Wrapf(err, "could not read tree of commit %s", commit.Hash)
	}

	segments := splitPath(path)
	if len(segments) == 0 {
		return repo.treeEntry("", "", filemode.Dir, tree)
	}

	for i, segment := range segments {
		entry := findEntry(tree, segment)
		if entry == nil {
			return nil, pathNotFound(path)
		}

		fullPath := strings.Join(segments[:i+1], "/")

		if i != len(segments)-1 {
			if entry.Mode != filemode.Dir {
				return nil, pathNotFound(path)
			}

			if tree, err = repo.repo.TreeObject(entry.Hash); err != nil {
				return nil, errors.Wrapf(err, "could not read tree \"%s\"", fullPath)
			}

			continue
		}

		switch kindOf(entry.Mode) {
		case TreeEntry:
			child, err := repo.repo.TreeObject(entry.Hash)
			if err != nil {
				return nil, errors.Wrapf(err, "could not read tree \"%s\"", fullPath)
			}

			return repo.treeEntry(entry.Name, fullPath, entry.Mode, child)

		case BlobEntry:
			return repo.blobEntry(entry, fullPath)

		default:
			return &Entry{
				Kind: UnsupportedEntry,
				Name: entry.Name,
				Path: fullPath,
				Mode: entry.Mode,
			}, nil
		}
	}

	// Unreachable: the loop always returns on the final segment.
	return nil, pathNotFound(path)
}

func (repo *GitRepository) treeEntry(name, path string, mode filemode.FileMode, tree *object.Tree) (*Entry, error) {
	listing := TreeListing{
		Entries: make([]ListingEntry, 0, len(tree.Entries)),
	}

	for _, child := range tree.Entries {
		listing.Entries = append(listing.Entries, ListingEntry{
			Name: child.Name,
			Kind: kindOf(child.Mode),
			Mode: child.Mode,
		})
	}

	sort.SliceStable(listing.Entries, func(i, j int) bool {
		a, b := listing.Entries[i], listing.Entries[j]

		if (a.Kind == TreeEntry) != (b.Kind == TreeEntry) {
			return a.Kind == TreeEntry
		}

		return a.Name < b.Name
	})

	return &Entry{
		Kind: TreeEntry,
		Name: name,
		Path: path,
		Mode: mode,
		Tree: &listing,
	}, nil
}

func (repo *GitRepository) blobEntry(entry *object.TreeEntry, path string) (*Entry, error) {
	blob, err := repo.repo.BlobObject(entry.Hash)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read blob \"%s\"", path)
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, errors.Wrapf(err, "could not read blob \"%s\"", path)
	}

	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read blob \"%s\"", path)
	}

	return &Entry{
		Kind: BlobEntry,
		Name: entry.Name,
		Path: path,
		Mode: entry.Mode,
		Blob: &Blob{
			Content: content,
			Size:    blob.Size,
		},
	}, nil
}

// Find a direct child of a tree by name.
func findEntry(tree *object.Tree, name string) *object.TreeEntry {
	for i := range tree.Entries {
		if tree.Entries[i].Name == name {
			return &tree.Entries[i]
		}
	}

	return nil
}

// Classify a file mode.
func kindOf(mode filemode.FileMode) EntryKind {
	switch mode {
	case filemode.Dir:
		return TreeEntry

	case filemode.Regular, filemode.Executable, filemode.Deprecated:
		return BlobEntry

	default:
		return UnsupportedEntry
	}
}

// Split a path into its non-empty segments.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))

	for _, part := range parts {
		if len(part) != 0 {
			segments = append(segments, part)
		}
	}

	return segments
}
