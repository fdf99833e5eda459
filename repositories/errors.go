package repositories

import (
	"github.com/pkg/errors"
)

var (
	// The repository name is invalid or its path could not be opened.
	ErrRepositoryNotFound = errors.New("repository not found")

	// The branch, tag, or revision does not exist or does not resolve to a
	// commit.
	ErrReferenceNotFound = errors.New("reference not found")

	// A path segment is missing, or a file was treated as a directory.
	ErrPathNotFound = errors.New("path not found")

	// The object kind is not one that can be displayed.
	ErrUnsupportedObject = errors.New("unsupported object kind")
)

// Return whether or not the error belongs to the not-found family.
//
// Callers map these to a 404 response. Every other error is a server error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRepositoryNotFound) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrPathNotFound)
}

func repositoryNotFound(name string) error {
	return errors.Wrapf(ErrRepositoryNotFound, "repository \"%s\"", name)
}

func referenceNotFound(name string) error {
	return errors.Wrapf(ErrReferenceNotFound, "reference \"%s\"", name)
}

func pathNotFound(path string) error {
	return errors.Wrapf(ErrPathNotFound, "path \"%s\"", path)
}
