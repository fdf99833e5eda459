package helpers

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
)

var (
	// Commits are given increasing timestamps so that history order is stable.
	commitClock int64
	commitEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Create a Git repository named `name` under `root` for testing.
//
// Example:
//
// ```go
// func Test(t *testing.T) {
//     root := helpers.CreateTestRoot(t)
//     rawRepo := helpers.CreateTestRepo(t, root, "repo")
//     helpers.SeedTestRepo(t, rawRepo)
//
//     // ...
// }
// ```
func CreateTestRepo(t *testing.T, root, name string) *git.Repository {
	t.Helper()
	assert := assert.New(t)

	path, err := filepath.EvalSymlinks(root)
	assert.Nil(err, "Could not get absolute path.")

	rawRepo, err := git.PlainInit(filepath.Join(path, name), false)
	assert.Nil(err, "Could not initialize repository.")

	return rawRepo
}

// Add files to a repository and commit them, returning the commit ID.
//
// Callers can compare committed file contents with the result of `helpers.GetRepoFiles`.
func SeedTestRepo(t *testing.T, rawRepo *git.Repository) plumbing.Hash {
	t.Helper()

	return CommitTestFiles(t, rawRepo, "Initial commit", repoFiles)
}

// Write the files into the work tree and commit them on the current branch.
func CommitTestFiles(t *testing.T, rawRepo *git.Repository, message string, files map[string][]byte) plumbing.Hash {
	t.Helper()
	assert := assert.New(t)

	worktree, err := rawRepo.Worktree()
	assert.Nil(err)

	createAndAddFiles(t, worktree, files)

	commitId, err := worktree.Commit(message, &git.CommitOptions{
		Author: testSignature(),
	})
	assert.Nil(err)

	return commitId
}

// Create a new branch with some test files, returning its reference.
//
// The original branch is checked out again afterwards, so HEAD is unchanged.
func CreateTestBranch(t *testing.T, rawRepo *git.Repository) *plumbing.Reference {
	t.Helper()
	assert := assert.New(t)

	head, err := rawRepo.Head()
	assert.Nil(err)

	worktree, err := rawRepo.Worktree()
	assert.Nil(err)

	branchName := plumbing.NewBranchReferenceName(TestBranchName)

	err = worktree.Checkout(&git.CheckoutOptions{
		Branch: branchName,
		Create: true,
	})
	assert.Nil(err)

	CommitTestFiles(t, rawRepo, "Add branch", branchFiles)

	err = worktree.Checkout(&git.CheckoutOptions{
		Branch: head.Name(),
	})
	assert.Nil(err)

	branch, err := rawRepo.Reference(branchName, false)
	assert.Nil(err)

	return branch
}

// Merge a new test branch into the current branch, returning the merge commit.
//
// Before the merge, the current branch gains a commit of its own, so the
// resulting history has two lines of development.
func CreateTestMerge(t *testing.T, rawRepo *git.Repository) plumbing.Hash {
	t.Helper()
	assert := assert.New(t)

	branch := CreateTestBranch(t, rawRepo)
	head := CommitTestFiles(t, rawRepo, "Update changes", map[string][]byte{
		"CHANGES": []byte("changes\n"),
	})

	worktree, err := rawRepo.Worktree()
	assert.Nil(err)

	createAndAddFiles(t, worktree, branchFiles)

	commitId, err := worktree.Commit("Merge "+TestBranchName, &git.CommitOptions{
		Author:  testSignature(),
		Parents: []plumbing.Hash{head, branch.Hash()},
	})
	assert.Nil(err)

	return commitId
}

// Tag the given commit.
//
// If `annotated` is true, a tag object is created and the reference points at
// it rather than at the commit.
func CreateTestTag(t *testing.T, rawRepo *git.Repository, name string, commitId plumbing.Hash, annotated bool) *plumbing.Reference {
	t.Helper()

	var opts *git.CreateTagOptions
	if annotated {
		opts = &git.CreateTagOptions{
			Tagger:  testSignature(),
			Message: name,
		}
	}

	ref, err := rawRepo.CreateTag(name, commitId, opts)
	assert.Nil(t, err)

	return ref
}

// Return the object ID of the given file at HEAD.
func GetRepositoryFileId(t *testing.T, rawRepo *git.Repository, path string) plumbing.Hash {
	t.Helper()
	assert := assert.New(t)

	head, err := rawRepo.Head()
	assert.Nil(err)

	headCommit, err := rawRepo.CommitObject(head.Hash())
	assert.Nil(err)

	tree, err := headCommit.Tree()
	assert.Nil(err)

	entry, err := tree.FindEntry(path)
	assert.Nil(err)

	return entry.Hash
}

// Get the object ID of the repository head.
func GetRepoHead(t *testing.T, rawRepo *git.Repository) plumbing.Hash {
	t.Helper()

	head, err := rawRepo.Head()
	assert.Nil(t, err)

	return head.Hash()
}

func testSignature() *object.Signature {
	tick := atomic.AddInt64(&commitClock, 1)

	return &object.Signature{
		Name:  "Author",
		Email: "author@example.com",
		When:  commitEpoch.Add(time.Duration(tick) * time.Minute),
	}
}

// Create some files and add them to to an index.
func createAndAddFiles(t *testing.T, worktree *git.Worktree, files map[string][]byte) {
	t.Helper()
	assert := assert.New(t)

	root := worktree.Filesystem.Root()

	for filename, content := range files {
		path := filepath.Join(root, filepath.FromSlash(filename))

		err := os.MkdirAll(filepath.Dir(path), 0755)
		assert.Nil(err)

		err = os.WriteFile(path, content, 0644)
		assert.Nil(err)

		_, err = worktree.Add(filename)
		assert.Nil(err)
	}
}
