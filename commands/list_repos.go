package commands

import (
	"fmt"
	"io"

	"github.com/reviewboard/rb-browser/browse"
	"github.com/reviewboard/rb-browser/config"
	"github.com/reviewboard/rb-browser/logging"
	"github.com/reviewboard/rb-browser/markdown"
	"github.com/reviewboard/rb-browser/repositories"
)

// Print the name of every repository the server would serve, one per line.
func ListRepositories(configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	defer logger.Sync()

	store, err := repositories.NewStore(cfg.StoreOptions(), logger)
	if err != nil {
		return err
	}

	renderer, err := markdown.New(cfg.HighlightStyle)
	if err != nil {
		return err
	}

	service := browse.New(store, renderer, browse.Options{CommitLimit: cfg.CommitLimit}, logger)

	summaries, err := service.ListRepositories()
	if err != nil {
		return err
	}

	for _, summary := range summaries {
		if len(summary.Description) != 0 {
			fmt.Fprintf(w, "%s\t%s\n", summary.Name, summary.Description)
		} else {
			fmt.Fprintln(w, summary.Name)
		}
	}

	return nil
}
