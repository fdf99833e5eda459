package helpers

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	// A set of files to create in the initial commit.
	repoFiles = map[string][]byte{
		"README.md":              []byte("# Test Repository\n\nSee [the guide](docs/guide.md).\n"),
		"COPYING":                []byte("COPYING\n"),
		"docs/guide.md":          []byte("# Guide\n\nRead the [reference](api/reference.txt).\n"),
		"docs/api/reference.txt": []byte("reference\n"),
		"image.bin":              {0xff, 0xfe, 0x00, 0x01},
	}

	// A set of files to create in the branch commit.
	branchFiles = map[string][]byte{
		"AUTHORS": []byte("AUTHORS\n"),
	}
)

const (
	// The name of the branch created by CreateTestBranch.
	TestBranchName = "test-branch"
)

// Get the files contained in the repository.
//
// This returns a copy of the original data structure, so it may be mutated by callers.
func GetRepoFiles() (files map[string][]byte) {
	files = make(map[string][]byte)

	for key, content := range repoFiles {
		files[key] = content
	}
	for key, content := range branchFiles {
		files[key] = content
	}

	return
}

// Create a temporary directory to hold test repositories.
//
// The directory is removed when the test finishes.
func CreateTestRoot(t *testing.T) string {
	t.Helper()

	path, err := os.MkdirTemp("", "rb-browser-test-")
	assert.Nil(t, err, "Could not create temporary directory.")

	t.Cleanup(func() {
		CleanupRepository(t, path)
	})

	return path
}

// Clean up a testing repository.
//
// This deletes the temporary files from disk.
func CleanupRepository(t *testing.T, path string) {
	t.Helper()

	err := os.RemoveAll(path)
	assert.Nil(t, err, "Could not cleanup repository.")
}
