package browse_test

import (
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"

	"github.com/reviewboard/rb-browser/browse"
	"github.com/reviewboard/rb-browser/helpers"
	"github.com/reviewboard/rb-browser/markdown"
	"github.com/reviewboard/rb-browser/repositories"
)

func newService(t *testing.T, opts repositories.StoreOptions, browseOpts browse.Options) *browse.Service {
	t.Helper()
	assert := assert.New(t)

	store, err := repositories.NewStore(opts, nil)
	assert.Nil(err)

	renderer, err := markdown.New("")
	assert.Nil(err)

	return browse.New(store, renderer, browseOpts, nil)
}

func seededService(t *testing.T, browseOpts browse.Options) (*browse.Service, *git.Repository) {
	t.Helper()

	root := helpers.CreateTestRoot(t)
	rawRepo := helpers.CreateTestRepo(t, root, "repo")
	helpers.SeedTestRepo(t, rawRepo)

	return newService(t, repositories.StoreOptions{Root: root}, browseOpts), rawRepo
}

func TestListRepositories(t *testing.T) {
	assert := assert.New(t)

	root := helpers.CreateTestRoot(t)
	helpers.SeedTestRepo(t, helpers.CreateTestRepo(t, root, "beta"))
	helpers.SeedTestRepo(t, helpers.CreateTestRepo(t, root, "alpha"))

	service := newService(t, repositories.StoreOptions{Root: root}, browse.Options{})

	summaries, err := service.ListRepositories()
	assert.Nil(err)
	assert.Equal([]browse.RepositorySummary{
		{Name: "alpha", URL: "/alpha"},
		{Name: "beta", URL: "/beta"},
	}, summaries)
}

func TestResolveIndex(t *testing.T) {
	assert := assert.New(t)

	service, rawRepo := seededService(t, browse.Options{
		CloneBaseURL: "https://git.example.com/",
	})
	helpers.CreateTestBranch(t, rawRepo)

	view, err := service.ResolveIndex("repo")
	assert.Nil(err)

	assert.Equal("repo", view.Repository.Name)
	assert.Equal("/repo", view.Repository.URL)
	assert.Equal("master", view.Ref)
	assert.Equal([]string{"master", helpers.TestBranchName}, view.Branches)
	assert.Empty(view.Tags)
	assert.False(view.Empty)
	assert.Equal("git clone https://git.example.com/repo", view.CloneCommand)

	// The branch commit is not reachable from HEAD.
	assert.Len(view.Commits, 1)
	assert.Equal("Initial commit", view.Commits[0].Summary())

	if assert.NotNil(view.Readme) && assert.NotNil(view.Readme.Document) {
		assert.Equal("README.md", view.Readme.Name)
		assert.Equal("Test Repository", view.Readme.Document.Title)
		assert.Contains(view.Readme.Document.HTML, `href="/repo/branch/master/docs/guide.md"`)
	}
}

func TestResolveIndexCommitLimit(t *testing.T) {
	assert := assert.New(t)

	service, rawRepo := seededService(t, browse.Options{CommitLimit: 2})

	for _, message := range []string{"Second", "Third", "Fourth"} {
		helpers.CommitTestFiles(t, rawRepo, message, map[string][]byte{
			"CHANGES": []byte(message + "\n"),
		})
	}

	view, err := service.ResolveIndex("repo")
	assert.Nil(err)

	if assert.Len(view.Commits, 2) {
		assert.Equal("Fourth", view.Commits[0].Summary())
		assert.Equal("Third", view.Commits[1].Summary())
	}
}

func TestResolveIndexEmptyRepository(t *testing.T) {
	assert := assert.New(t)

	root := helpers.CreateTestRoot(t)
	helpers.CreateTestRepo(t, root, "empty")

	service := newService(t, repositories.StoreOptions{Root: root}, browse.Options{})

	view, err := service.ResolveIndex("empty")
	assert.Nil(err)
	assert.True(view.Empty)
	assert.Empty(view.Commits)
	assert.Nil(view.Readme)
	assert.Equal("git clone "+filepath.Join(root, "empty"), view.CloneCommand)
}

func TestResolveIndexMissingHeadBranch(t *testing.T) {
	assert := assert.New(t)

	service, rawRepo := seededService(t, browse.Options{})
	helpers.CreateTestBranch(t, rawRepo)

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("missing"))
	assert.Nil(rawRepo.Storer.SetReference(head))

	view, err := service.ResolveIndex("repo")
	assert.Nil(err)
	assert.False(view.Empty)
	assert.Equal("master", view.Ref)
	assert.Equal([]string{"master", helpers.TestBranchName}, view.Branches)

	if assert.Len(view.Commits, 1) {
		assert.Equal("Initial commit", view.Commits[0].Summary())
	}

	if assert.NotNil(view.Readme) && assert.NotNil(view.Readme.Document) {
		assert.Contains(view.Readme.Document.HTML, `href="/repo/branch/master/docs/guide.md"`)
	}
}

func TestResolveIndexNotFound(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})

	_, err := service.ResolveIndex("missing")
	assert.ErrorIs(err, repositories.ErrRepositoryNotFound)
}

func TestResolveIndexSingleRepository(t *testing.T) {
	assert := assert.New(t)

	root := helpers.CreateTestRoot(t)
	helpers.SeedTestRepo(t, helpers.CreateTestRepo(t, root, "only"))

	service := newService(t, repositories.StoreOptions{
		Root:             filepath.Join(root, "only"),
		SingleRepository: true,
	}, browse.Options{})
	assert.True(service.IsSingle())

	view, err := service.ResolveIndex("")
	assert.Nil(err)
	assert.Equal("only", view.Repository.Name)
	assert.Equal("/", view.Repository.URL)

	if assert.NotNil(view.Readme) && assert.NotNil(view.Readme.Document) {
		assert.Contains(view.Readme.Document.HTML, `href="/branch/master/docs/guide.md"`)
	}
}

func TestResolvePathMarkdownFile(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})

	view, err := service.ResolvePath("repo", "master", "docs/guide.md")
	assert.Nil(err)

	assert.Equal(repositories.BlobEntry, view.Kind)
	assert.Equal("docs/guide.md", view.Path)
	assert.Equal("/repo/branch/master/docs", view.ParentURL)
	assert.Equal([]browse.Breadcrumb{
		{Name: "repo", URL: "/repo/branch/master/"},
		{Name: "docs", URL: "/repo/branch/master/docs"},
		{Name: "guide.md", URL: "/repo/branch/master/docs/guide.md"},
	}, view.Breadcrumbs)

	assert.Nil(view.Directory)
	assert.Nil(view.Unsupported)

	if assert.NotNil(view.File) {
		assert.Equal("guide.md", view.File.Name)
		assert.False(view.File.Binary)
		assert.Equal("/repo/raw/master/docs/guide.md", view.File.RawURL)

		if assert.NotNil(view.File.Document) {
			assert.Equal("Guide", view.File.Document.Title)
			assert.Contains(view.File.Document.HTML, `href="/repo/branch/master/docs/api/reference.txt"`)
		}
	}
}

func TestResolvePathTextFile(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})

	view, err := service.ResolvePath("repo", "master", "COPYING")
	assert.Nil(err)

	if assert.NotNil(view.File) {
		assert.Equal("COPYING\n", view.File.Text)
		assert.Equal(int64(len("COPYING\n")), view.File.Size)
		assert.Nil(view.File.Document)
	}

	assert.Equal("/repo/branch/master/", view.ParentURL)
}

func TestResolvePathBinaryFile(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})

	view, err := service.ResolvePath("repo", "master", "image.bin")
	assert.Nil(err)

	if assert.NotNil(view.File) {
		assert.True(view.File.Binary)
		assert.Empty(view.File.Text)
		assert.Equal("/repo/raw/master/image.bin", view.File.RawURL)
	}
}

func TestResolvePathDirectory(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})

	view, err := service.ResolvePath("repo", "master", "")
	assert.Nil(err)

	assert.Equal(repositories.TreeEntry, view.Kind)
	assert.Empty(view.ParentURL)
	assert.Len(view.Breadcrumbs, 1)

	if assert.NotNil(view.Directory) {
		assert.Equal([]browse.DirectoryEntry{
			{Name: "docs", Kind: repositories.TreeEntry, URL: "/repo/branch/master/docs"},
			{Name: "COPYING", Kind: repositories.BlobEntry, URL: "/repo/branch/master/COPYING"},
			{Name: "README.md", Kind: repositories.BlobEntry, URL: "/repo/branch/master/README.md"},
			{Name: "image.bin", Kind: repositories.BlobEntry, URL: "/repo/branch/master/image.bin"},
		}, view.Directory.Entries)

		assert.True(view.Directory.Entries[0].IsDir())
		assert.False(view.Directory.Entries[1].IsDir())

		if assert.NotNil(view.Directory.Readme) {
			assert.Equal("README.md", view.Directory.Readme.Name)
		}
	}
}

func TestResolvePathSubdirectoryWithoutReadme(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})

	view, err := service.ResolvePath("repo", "master", "docs/api")
	assert.Nil(err)

	if assert.NotNil(view.Directory) {
		assert.Nil(view.Directory.Readme)
		assert.Equal([]browse.DirectoryEntry{
			{Name: "reference.txt", Kind: repositories.BlobEntry, URL: "/repo/branch/master/docs/api/reference.txt"},
		}, view.Directory.Entries)
	}

	assert.Equal("/repo/branch/master/docs", view.ParentURL)
}

func TestResolvePathPlainReadme(t *testing.T) {
	assert := assert.New(t)

	service, rawRepo := seededService(t, browse.Options{})
	helpers.CommitTestFiles(t, rawRepo, "Add plain README", map[string][]byte{
		"docs/api/ReadMe": []byte("plain text\n"),
	})

	view, err := service.ResolvePath("repo", "master", "docs/api")
	assert.Nil(err)

	if assert.NotNil(view.Directory) && assert.NotNil(view.Directory.Readme) {
		assert.Equal("ReadMe", view.Directory.Readme.Name)
		assert.Equal("plain text\n", view.Directory.Readme.Text)
		assert.Nil(view.Directory.Readme.Document)
	}
}

func TestResolvePathTag(t *testing.T) {
	assert := assert.New(t)

	service, rawRepo := seededService(t, browse.Options{})
	head := helpers.GetRepoHead(t, rawRepo)
	helpers.CreateTestTag(t, rawRepo, "v1.0", head, true)

	view, err := service.ResolvePath("repo", "v1.0", "README.md")
	assert.Nil(err)
	assert.Equal("v1.0", view.Ref)

	if assert.NotNil(view.File) {
		assert.Equal("/repo/raw/v1.0/README.md", view.File.RawURL)
	}
}

func TestResolvePathUnsupported(t *testing.T) {
	assert := assert.New(t)

	service, rawRepo := seededService(t, browse.Options{})
	addSubmodule(t, rawRepo)

	view, err := service.ResolvePath("repo", "master", "vendor")
	assert.Nil(err)

	assert.Equal(repositories.UnsupportedEntry, view.Kind)
	assert.Nil(view.File)
	assert.Nil(view.Directory)

	if assert.NotNil(view.Unsupported) {
		assert.Equal("vendor", view.Unsupported.Name)
		assert.Equal("submodule", view.Unsupported.Description)
	}

	_, err = service.ResolveRaw("repo", "master", "vendor")
	assert.ErrorIs(err, repositories.ErrUnsupportedObject)
	assert.False(repositories.IsNotFound(err))

	_, err = service.ResolvePath("repo", "master", "vendor/file")
	assert.ErrorIs(err, repositories.ErrPathNotFound)
}

func TestResolvePathNotFound(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})

	_, err := service.ResolvePath("missing", "master", "README.md")
	assert.ErrorIs(err, repositories.ErrRepositoryNotFound)

	_, err = service.ResolvePath("repo", "no-such-branch", "README.md")
	assert.ErrorIs(err, repositories.ErrReferenceNotFound)

	_, err = service.ResolvePath("repo", "master", "missing.txt")
	assert.ErrorIs(err, repositories.ErrPathNotFound)

	_, err = service.ResolvePath("repo", "master", "README.md/extra")
	assert.ErrorIs(err, repositories.ErrPathNotFound)
}

func TestResolveRaw(t *testing.T) {
	assert := assert.New(t)

	service, _ := seededService(t, browse.Options{})
	files := helpers.GetRepoFiles()

	for _, name := range []string{"README.md", "image.bin", "docs/api/reference.txt"} {
		blob, err := service.ResolveRaw("repo", "master", name)
		if assert.Nilf(err, "unexpected error for %q", name) {
			assert.Equal(files[name], blob.Content)
			assert.Equal(int64(len(files[name])), blob.Size)
		}
	}

	_, err := service.ResolveRaw("repo", "master", "docs")
	assert.ErrorIs(err, repositories.ErrPathNotFound)
}

// Commit a tree containing a submodule entry named "vendor" on top of HEAD.
func addSubmodule(t *testing.T, rawRepo *git.Repository) {
	t.Helper()
	assert := assert.New(t)

	head := helpers.GetRepoHead(t, rawRepo)

	commit, err := rawRepo.CommitObject(head)
	assert.Nil(err)

	tree, err := commit.Tree()
	assert.Nil(err)

	entries := append([]object.TreeEntry{}, tree.Entries...)
	entries = append(entries, object.TreeEntry{
		Name: "vendor",
		Mode: filemode.Submodule,
		Hash: head,
	})

	newTree := &object.Tree{Entries: entries}
	obj := rawRepo.Storer.NewEncodedObject()
	assert.Nil(newTree.Encode(obj))

	treeHash, err := rawRepo.Storer.SetEncodedObject(obj)
	assert.Nil(err)

	newCommit := &object.Commit{
		Author:       commit.Author,
		Committer:    commit.Committer,
		Message:      "Add submodule",
		TreeHash:     treeHash,
		ParentHashes: []plumbing.Hash{head},
	}

	obj = rawRepo.Storer.NewEncodedObject()
	assert.Nil(newCommit.Encode(obj))

	commitHash, err := rawRepo.Storer.SetEncodedObject(obj)
	assert.Nil(err)

	ref, err := rawRepo.Head()
	assert.Nil(err)
	assert.Nil(rawRepo.Storer.SetReference(plumbing.NewHashReference(ref.Name(), commitHash)))
}
