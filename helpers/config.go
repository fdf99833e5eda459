package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewboard/rb-browser/config"
	"github.com/reviewboard/rb-browser/markdown"
	"github.com/reviewboard/rb-browser/repositories"
)

// Create a configuration serving the repositories under `root`.
func CreateTestConfig(t *testing.T, root string) config.Config {
	t.Helper()

	return config.Config{
		Port:           config.DefaultPort,
		RepositoryRoot: root,
		CommitLimit:    repositories.DefaultCommitLimit,
		CacheSize:      config.DefaultCacheSize,
		HighlightStyle: markdown.DefaultStyle,
		LogLevel:       "none",
	}
}

// Write the configuration as `config.json` inside `dir`, returning its path.
func WriteConfig(t *testing.T, dir string, cfg *config.Config) string {
	t.Helper()
	assert := assert.New(t)

	content, err := cfg.Serialize()
	assert.Nil(err)

	return WriteTestConfig(t, dir, string(content))
}

// Write raw configuration content as `config.json` inside `dir`, returning
// its path.
func WriteTestConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, config.DefaultConfigPath)
	assert.Nil(t, os.WriteFile(path, []byte(content), 0600))

	return path
}
