// Package browse resolves repository pages: it ties the repository store,
// reference resolution, tree lookup, and Markdown rendering together and
// produces view models for the templating layer.
package browse

import (
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/reviewboard/rb-browser/markdown"
	"github.com/reviewboard/rb-browser/repositories"
)

var (
	// README names, in order of preference. Matching is case-insensitive.
	readmeNames = []string{"readme.md", "readme.markdown", "readme"}

	markdownExtensions = map[string]struct{}{
		".md":       {},
		".markdown": {},
	}
)

// Options for a Service.
type Options struct {
	// The number of commits listed on index pages.
	CommitLimit int

	// The URL that repository names are appended to when building clone
	// commands. If empty, the repository's path on disk is used.
	CloneBaseURL string
}

// Service resolves requests into views.
//
// Every method is a pure read and is safe to call concurrently.
type Service struct {
	store    *repositories.Store
	renderer *markdown.Renderer
	opts     Options
	logger   *zap.Logger
}

// Create a new service.
func New(store *repositories.Store, renderer *markdown.Renderer, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.CommitLimit <= 0 {
		opts.CommitLimit = repositories.DefaultCommitLimit
	}

	return &Service{
		store:    store,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
	}
}

// Return whether or not the service serves a single repository.
func (s *Service) IsSingle() bool {
	return s.store.IsSingle()
}

// List every repository in the store.
func (s *Service) ListRepositories() ([]RepositorySummary, error) {
	repos, err := s.store.List()
	if err != nil {
		return nil, err
	}

	summaries := make([]RepositorySummary, 0, len(repos))
	for _, repo := range repos {
		summaries = append(summaries, s.summarize(repo))
	}

	return summaries, nil
}

// Open the named repository.
func (s *Service) Open(repoName string) (*repositories.GitRepository, error) {
	return s.store.Open(repoName)
}

// Resolve the index page of a repository.
//
// Empty repositories resolve successfully, with Empty set.
func (s *Service) ResolveIndex(repoName string) (*IndexView, error) {
	repo, err := s.store.Open(repoName)
	if err != nil {
		return nil, err
	}

	return s.RepositoryIndex(repo)
}

// Resolve the index page of an opened repository.
//
// If HEAD names a branch that does not exist, the first branch is shown
// instead. Only a repository without branches is reported as Empty.
func (s *Service) RepositoryIndex(repo *repositories.GitRepository) (*IndexView, error) {
	var err error

	view := &IndexView{
		Repository:   s.summarize(repo),
		CloneCommand: s.cloneCommand(repo),
	}

	if view.Branches, err = repo.Branches(); err != nil {
		return nil, err
	}

	if view.Tags, err = repo.Tags(); err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if errors.Is(err, repositories.ErrReferenceNotFound) {
		if len(view.Branches) == 0 {
			view.Empty = true
			view.Ref = repo.DefaultBranch()
			return view, nil
		}

		s.logger.Debug("HEAD does not resolve, falling back to the first branch",
			zap.String("repository", repo.GetName()),
			zap.String("branch", view.Branches[0]))

		view.Ref = view.Branches[0]
		if head, err = repo.ResolveRef(view.Ref); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if view.Ref = repo.DefaultBranch(); len(view.Ref) == 0 {
		view.Ref = head.Hash.String()
	}

	if view.Commits, err = repo.RecentCommits(head, s.opts.CommitLimit); err != nil {
		return nil, err
	}

	root, err := repo.Lookup(head, "")
	if err != nil {
		return nil, err
	}

	if view.Readme, err = s.readme(repo, head, root, view.Ref); err != nil {
		return nil, err
	}

	return view, nil
}

// Resolve the page for a path at a reference.
//
// Files are decoded as text, or flagged as binary if they are not valid
// UTF-8. Markdown files are rendered. Directories are listed along with
// their README. Submodules and symbolic links resolve to a placeholder.
func (s *Service) ResolvePath(repoName, refName, filePath string) (*PathView, error) {
	repo, err := s.store.Open(repoName)
	if err != nil {
		return nil, err
	}

	return s.RepositoryPath(repo, refName, filePath)
}

// Resolve the page for a path at a reference in an opened repository.
func (s *Service) RepositoryPath(repo *repositories.GitRepository, refName, filePath string) (*PathView, error) {
	commit, err := repo.ResolveRef(refName)
	if err != nil {
		return nil, err
	}

	entry, err := repo.Lookup(commit, filePath)
	if err != nil {
		return nil, err
	}

	base := s.baseURL(repo)

	view := &PathView{
		Repository:  s.summarize(repo),
		Ref:         refName,
		Path:        entry.Path,
		Breadcrumbs: breadcrumbs(base, repo.GetName(), refName, entry.Path),
		Kind:        entry.Kind,
	}

	if len(entry.Path) != 0 {
		view.ParentURL = TreeURL(base, refName, parentDir(entry.Path))
	}

	switch entry.Kind {
	case repositories.BlobEntry:
		view.File, err = s.fileView(base, refName, entry)

	case repositories.TreeEntry:
		view.Directory, err = s.directoryView(repo, commit, base, refName, entry)

	case repositories.UnsupportedEntry:
		view.Unsupported = &UnsupportedView{
			Name:        entry.Name,
			Description: describeMode(entry.Mode),
		}
	}

	if err != nil {
		return nil, err
	}

	return view, nil
}

// Return the bytes of a file at a reference.
//
// Directories resolve to ErrPathNotFound and other entries to
// ErrUnsupportedObject.
func (s *Service) ResolveRaw(repoName, refName, filePath string) (*repositories.Blob, error) {
	repo, err := s.store.Open(repoName)
	if err != nil {
		return nil, err
	}

	return s.RepositoryRaw(repo, refName, filePath)
}

// Return the bytes of a file at a reference in an opened repository.
func (s *Service) RepositoryRaw(repo *repositories.GitRepository, refName, filePath string) (*repositories.Blob, error) {
	commit, err := repo.ResolveRef(refName)
	if err != nil {
		return nil, err
	}

	entry, err := repo.Lookup(commit, filePath)
	if err != nil {
		return nil, err
	}

	switch entry.Kind {
	case repositories.BlobEntry:
		return entry.Blob, nil

	case repositories.TreeEntry:
		return nil, errors.Wrapf(repositories.ErrPathNotFound, "\"%s\" is a directory", filePath)

	default:
		return nil, errors.Wrapf(repositories.ErrUnsupportedObject, "\"%s\" is a %s", filePath, describeMode(entry.Mode))
	}
}

func (s *Service) fileView(base, refName string, entry *repositories.Entry) (*FileView, error) {
	view := &FileView{
		Name:   entry.Name,
		Size:   entry.Blob.Size,
		RawURL: RawURL(base, refName, entry.Path),
	}

	if !utf8.Valid(entry.Blob.Content) {
		view.Binary = true
		return view, nil
	}

	view.Text = string(entry.Blob.Content)

	if isMarkdown(entry.Name) {
		doc, err := s.renderer.RenderAt(entry.Blob.Content, markdown.Location{
			Base: base,
			Ref:  refName,
			Dir:  parentDir(entry.Path),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "could not render \"%s\"", entry.Path)
		}

		view.Document = doc
	}

	return view, nil
}

func (s *Service) directoryView(
	repo *repositories.GitRepository,
	commit *object.Commit,
	base, refName string,
	entry *repositories.Entry,
) (*DirectoryView, error) {
	view := &DirectoryView{
		Entries: make([]DirectoryEntry, 0, len(entry.Tree.Entries)),
	}

	for _, child := range entry.Tree.Entries {
		childPath := path.Join(entry.Path, child.Name)

		view.Entries = append(view.Entries, DirectoryEntry{
			Name: child.Name,
			Kind: child.Kind,
			URL:  TreeURL(base, refName, childPath),
		})
	}

	readme, err := s.readme(repo, commit, entry, refName)
	if err != nil {
		return nil, err
	}

	view.Readme = readme

	return view, nil
}

// Find and render the README in a directory, if there is one.
func (s *Service) readme(
	repo *repositories.GitRepository,
	commit *object.Commit,
	dir *repositories.Entry,
	refName string,
) (*ReadmeView, error) {
	name := findReadme(dir.Tree)
	if len(name) == 0 {
		return nil, nil
	}

	entry, err := repo.Lookup(commit, path.Join(dir.Path, name))
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(entry.Blob.Content) {
		s.logger.Debug("Skipping binary README",
			zap.String("repository", repo.GetName()),
			zap.String("path", entry.Path))
		return nil, nil
	}

	view := &ReadmeView{Name: name}

	if !isMarkdown(name) {
		view.Text = string(entry.Blob.Content)
		return view, nil
	}

	doc, err := s.renderer.RenderAt(entry.Blob.Content, markdown.Location{
		Base: s.baseURL(repo),
		Ref:  refName,
		Dir:  dir.Path,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not render \"%s\"", entry.Path)
	}

	view.Document = doc

	return view, nil
}

func (s *Service) summarize(repo *repositories.GitRepository) RepositorySummary {
	base := s.baseURL(repo)
	if len(base) == 0 {
		base = "/"
	}

	return RepositorySummary{
		Name:        repo.GetName(),
		Description: repo.Description,
		Owner:       repo.Owner,
		URL:         base,
	}
}

// Return the URL prefix of pages for a repository.
func (s *Service) baseURL(repo *repositories.GitRepository) string {
	if s.store.IsSingle() {
		return ""
	}

	return "/" + url.PathEscape(repo.GetName())
}

func (s *Service) cloneCommand(repo *repositories.GitRepository) string {
	source := repo.GetPath()
	if len(s.opts.CloneBaseURL) != 0 {
		source = strings.TrimSuffix(s.opts.CloneBaseURL, "/") + "/" + repo.GetName()
	}

	return shellquote.Join("git", "clone", source)
}

// Return the name of the preferred README blob in a listing.
func findReadme(listing *repositories.TreeListing) string {
	for _, candidate := range readmeNames {
		for _, entry := range listing.Entries {
			if entry.Kind == repositories.BlobEntry && strings.EqualFold(entry.Name, candidate) {
				return entry.Name
			}
		}
	}

	return ""
}

func isMarkdown(name string) bool {
	_, ok := markdownExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

func describeMode(mode filemode.FileMode) string {
	switch mode {
	case filemode.Submodule:
		return "submodule"
	case filemode.Symlink:
		return "symbolic link"
	default:
		return "unsupported object"
	}
}

func breadcrumbs(base, repoName, refName, filePath string) []Breadcrumb {
	crumbs := []Breadcrumb{{
		Name: repoName,
		URL:  TreeURL(base, refName, ""),
	}}

	if len(filePath) == 0 {
		return crumbs
	}

	segments := strings.Split(filePath, "/")
	for i, segment := range segments {
		crumbs = append(crumbs, Breadcrumb{
			Name: segment,
			URL:  TreeURL(base, refName, strings.Join(segments[:i+1], "/")),
		})
	}

	return crumbs
}

// Return the directory containing a path, or "" at the root.
func parentDir(filePath string) string {
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" {
		return ""
	}

	return dir
}

// Return the URL of the page showing a path at a reference.
//
// The base is the repository's URL prefix, empty in single-repository mode.
func TreeURL(base, refName, filePath string) string {
	return base + "/branch/" + url.PathEscape(refName) + "/" + escapePath(filePath)
}

// Return the URL serving the bytes of a file at a reference.
func RawURL(base, refName, filePath string) string {
	return base + "/raw/" + url.PathEscape(refName) + "/" + escapePath(filePath)
}

// Escape each segment of a slash-separated path.
func escapePath(filePath string) string {
	if len(filePath) == 0 {
		return ""
	}

	segments := strings.Split(filePath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return strings.Join(segments, "/")
}
