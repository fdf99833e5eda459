package repositories

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-ini/ini"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	gitwebSection = "gitweb"

	// The description git writes into every new repository.
	defaultDescriptionPrefix = "Unnamed repository;"
)

// Options for a Store.
type StoreOptions struct {
	// The directory containing repositories or, in single-repository mode,
	// the repository itself.
	Root string

	// Serve exactly one repository found at Root.
	SingleRepository bool

	// The maximum number of opened handles kept between requests in
	// multi-repository mode. Zero disables the cache.
	CacheSize int
}

// Store opens repositories by name.
//
// In single-repository mode the repository is opened once, when the store is
// created, and every lookup returns it regardless of name. In
// multi-repository mode each name is resolved against the root directory.
type Store struct {
	root   string
	single *GitRepository
	cache  *lru.Cache[string, *GitRepository]
	logger *zap.Logger
}

// Create a new store.
//
// In single-repository mode, an error is returned if the root is not a
// repository.
func NewStore(opts StoreOptions, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, errors.Wrap(err, "could not resolve repository root")
	}

	store := &Store{
		root:   root,
		logger: logger,
	}

	if opts.SingleRepository {
		store.single, err = Open(filepath.Base(root), root)
		if err != nil {
			return nil, err
		}

		return store, nil
	}

	if opts.CacheSize > 0 {
		if store.cache, err = lru.New[string, *GitRepository](opts.CacheSize); err != nil {
			return nil, errors.Wrap(err, "could not create repository cache")
		}
	}

	return store, nil
}

// Return whether or not the store serves a single repository.
func (store *Store) IsSingle() bool {
	return store.single != nil
}

// Open the named repository.
//
// The returned error wraps ErrRepositoryNotFound if the name is invalid, the
// path does not exist, or the path is not a repository.
func (store *Store) Open(name string) (*GitRepository, error) {
	if store.single != nil {
		return store.single, nil
	}

	if !validName(name) {
		return nil, repositoryNotFound(name)
	}

	path := filepath.Join(store.root, name)

	if store.cache != nil {
		if repo, ok := store.cache.Get(name); ok {
			if _, err := os.Stat(path); err == nil {
				return repo, nil
			}

			store.logger.Info("Evicting repository that no longer exists",
				zap.String("repository", name),
				zap.String("path", path))
			store.cache.Remove(name)

			return nil, repositoryNotFound(name)
		}
	}

	repo, err := Open(name, path)
	if err != nil {
		return nil, err
	}

	if store.cache != nil {
		store.cache.Add(name, repo)
	}

	return repo, nil
}

// List all repositories in the store, sorted by name.
//
// Directories that cannot be opened as repositories are skipped.
func (store *Store) List() ([]*GitRepository, error) {
	if store.single != nil {
		return []*GitRepository{store.single}, nil
	}

	entries, err := os.ReadDir(store.root)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read repository root \"%s\"", store.root)
	}

	repos := make([]*GitRepository, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() || !validName(entry.Name()) {
			continue
		}

		repo, err := store.Open(entry.Name())
		if err != nil {
			store.logger.Debug("Skipping directory",
				zap.String("name", entry.Name()),
				zap.Error(err))
			continue
		}

		repos = append(repos, repo)
	}

	return repos, nil
}

// Open the repository at the given path, giving it the provided name.
func Open(name, path string) (*GitRepository, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, repositoryNotFound(name)
	}

	gitRepo, err := git.PlainOpen(path)
	if err != nil {
		return nil, errors.Wrap(repositoryNotFound(name), err.Error())
	}

	repo := &GitRepository{
		RepositoryInfo: RepositoryInfo{
			Name: name,
			Path: path,
		},
		repo: gitRepo,
	}

	repo.Description, repo.Owner = readGitwebMetadata(gitDir(path))

	return repo, nil
}

// Return whether or not a name can refer to a repository under the root.
func validName(name string) bool {
	return len(name) != 0 &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`) &&
		filepath.Base(name) == name
}

// Return the Git directory for a repository path.
//
// Bare repositories are their own Git directory.
func gitDir(path string) string {
	dotGit := filepath.Join(path, git.GitDirName)

	if info, err := os.Stat(dotGit); err == nil && info.IsDir() {
		return dotGit
	}

	return path
}

// Read the description and owner of a repository.
//
// The `[gitweb]` section of the repository config takes precedence. The
// `description` file is used otherwise, unless it still holds the text git
// writes by default.
func readGitwebMetadata(dir string) (description, owner string) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		Loose:            true,
		Insensitive:      true,
		AllowBooleanKeys: true,
	}, filepath.Join(dir, "config"))

	if err == nil {
		section := cfg.Section(gitwebSection)
		description = section.Key("description").String()
		owner = section.Key("owner").String()
	}

	if len(description) == 0 {
		if content, err := os.ReadFile(filepath.Join(dir, "description")); err == nil {
			text := strings.TrimSpace(string(content))

			if !strings.HasPrefix(text, defaultDescriptionPrefix) {
				description = text
			}
		}
	}

	return
}
