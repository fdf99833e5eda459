package repositories

import (
	"time"

	"github.com/go-git/go-git/v5"
)

// RepositoryInfo is a generic representation of a repository, containing
// a name and a path to the repository.
type RepositoryInfo struct {
	Name string
	Path string
}

// GitRepository is an opened, read-only handle to a Git repository.
//
// Handles are immutable once opened and are safe to share between
// goroutines; every operation on them is a pure read.
type GitRepository struct {
	RepositoryInfo

	// A short description from the repository's gitweb metadata, if any.
	Description string

	// The owner from the repository's gitweb metadata, if any.
	Owner string

	repo *git.Repository
}

// GetName returns the name of the repository.
func (repo *GitRepository) GetName() string {
	return repo.Name
}

// GetPath returns the path of the repository.
func (repo *GitRepository) GetPath() string {
	return repo.Path
}

// Metadata about a commit.
type CommitInfo struct {
	// The author of the commit.
	Author string

	// The unique identifier of the commit.
	Id string

	// The date the commit was authored.
	Date time.Time

	// The commit's message.
	Message string

	// The unique identifier of the first parent commit.
	ParentId string
}

// Return an abbreviated commit ID.
func (c CommitInfo) ShortId() string {
	if len(c.Id) > shortIdLength {
		return c.Id[:shortIdLength]
	}

	return c.Id
}

// Return the first line of the commit message.
func (c CommitInfo) Summary() string {
	for i, ch := range c.Message {
		if ch == '\n' {
			return c.Message[:i]
		}
	}

	return c.Message
}
