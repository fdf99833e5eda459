package repositories

import (
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/pkg/errors"
)

const (
	DefaultCommitLimit     = 5  // The number of commits shown when no limit is given.
	branchesAllocationSize = 10 // The initial allocation size for branches.
	shortIdLength          = 7  // The length of an abbreviated commit ID.
	maxPeelDepth           = 16 // The deepest chain of tags we will follow.
)

// Resolve a reference name to the commit it ultimately designates.
//
// Names are tried as given when fully qualified (`refs/...` or `HEAD`);
// otherwise as a branch, then as a tag. A full commit hash is accepted as a
// last resort. Annotated tags are peeled down to their commit.
//
// The returned error wraps ErrReferenceNotFound if the name does not exist or
// does not resolve to a commit.
func (repo *GitRepository) ResolveRef(name string) (*object.Commit, error) {
	if !validRefName(name) {
		return nil, referenceNotFound(name)
	}

	for _, candidate := range referenceCandidates(name) {
		ref, err := repo.repo.Reference(candidate, true)
		if err == plumbing.ErrReferenceNotFound {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "could not read reference \"%s\"", candidate)
		}

		return repo.peel(name, ref.Hash())
	}

	if plumbing.IsHash(name) {
		return repo.peel(name, plumbing.NewHash(name))
	}

	return nil, referenceNotFound(name)
}

// Return the commit that HEAD points at.
//
// Empty repositories have no such commit and return ErrReferenceNotFound.
func (repo *GitRepository) Head() (*object.Commit, error) {
	return repo.ResolveRef(plumbing.HEAD.String())
}

// Return the short name of the branch HEAD points at.
//
// If HEAD is detached, an empty string is returned.
func (repo *GitRepository) DefaultBranch() string {
	head, err := repo.repo.Reference(plumbing.HEAD, false)
	if err != nil || head.Type() != plumbing.SymbolicReference {
		return ""
	}

	return head.Target().Short()
}

// Return the short names of all local branches, sorted.
func (repo *GitRepository) Branches() ([]string, error) {
	iter, err := repo.repo.Branches()
	if err != nil {
		return nil, errors.Wrap(err, "could not list branches")
	}

	return shortNames(iter)
}

// Return the short names of all tags, sorted.
func (repo *GitRepository) Tags() ([]string, error) {
	iter, err := repo.repo.Tags()
	if err != nil {
		return nil, errors.Wrap(err, "could not list tags")
	}

	return shortNames(iter)
}

// Return up to `limit` commits reachable from `start`, newest first.
//
// The walk is ordered by committer time and stops as soon as `limit` commits
// have been collected, so the full history is never loaded. A non-positive
// limit means DefaultCommitLimit.
func (repo *GitRepository) RecentCommits(start *object.Commit, limit int) ([]CommitInfo, error) {
	if limit <= 0 {
		limit = DefaultCommitLimit
	}

	iter, err := repo.repo.Log(&git.LogOptions{
		From:  start.Hash,
		Order: git.LogOrderCommitterTime,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not walk history from %s", start.Hash)
	}

	defer iter.Close()

	commits := make([]CommitInfo, 0, limit)
	seen := make(map[plumbing.Hash]struct{}, limit)

	for len(commits) < limit {
		commit, err := iter.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "could not read commit")
		}

		if _, ok := seen[commit.Hash]; ok {
			continue
		}

		seen[commit.Hash] = struct{}{}
		commits = append(commits, newCommitInfo(commit))
	}

	return commits, nil
}

// Dereference an object until a commit is reached.
func (repo *GitRepository) peel(name string, hash plumbing.Hash) (*object.Commit, error) {
	for i := 0; i < maxPeelDepth; i++ {
		obj, err := repo.repo.Object(plumbing.AnyObject, hash)
		if err == plumbing.ErrObjectNotFound {
			return nil, referenceNotFound(name)
		} else if err != nil {
			return nil, errors.Wrapf(err, "could not read object %s", hash)
		}

		switch o := obj.(type) {
		case *object.Commit:
			return o, nil

		case *object.Tag:
			hash = o.Target

		default:
			return nil, errors.Wrapf(referenceNotFound(name), "%s is a %s", hash, obj.Type())
		}
	}

	return nil, errors.Wrapf(referenceNotFound(name), "tag chain deeper than %d", maxPeelDepth)
}

// Return the fully-qualified names to try for a reference name.
func referenceCandidates(name string) []plumbing.ReferenceName {
	if name == plumbing.HEAD.String() || strings.HasPrefix(name, "refs/") {
		return []plumbing.ReferenceName{plumbing.ReferenceName(name)}
	}

	return []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewTagReferenceName(name),
	}
}

// Reject names that could escape the references namespace.
func validRefName(name string) bool {
	if len(name) == 0 || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}

	if strings.Contains(name, "..") || strings.ContainsAny(name, "\\\x00 ~^:?*[") {
		return false
	}

	return true
}

// Collect and sort the short names of the references in an iterator.
func shortNames(iter storer.ReferenceIter) ([]string, error) {
	defer iter.Close()

	names := make([]string, 0, branchesAllocationSize)

	err := iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not read references")
	}

	sort.Strings(names)

	return names, nil
}

func newCommitInfo(commit *object.Commit) CommitInfo {
	var parent string
	if commit.NumParents() > 0 {
		parent = commit.ParentHashes[0].String()
	}

	return CommitInfo{
		Author:   commit.Author.Name,
		Id:       commit.Hash.String(),
		Date:     commit.Author.When,
		Message:  commit.Message,
		ParentId: parent,
	}
}
