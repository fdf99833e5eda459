package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin"

	"github.com/reviewboard/rb-browser/commands"
	"github.com/reviewboard/rb-browser/config"
	"github.com/reviewboard/rb-browser/markdown"
)

var (
	app = kingpin.New("rb-browser", "Browse Git repositories and their Markdown documentation over HTTP.")

	configPath = app.Flag("config", "Path to the configuration file.").
			Default(config.DefaultConfigPath).
			String()

	serveCommand = app.Command("serve", "Serve repositories over HTTP.").Default()

	listReposCommand = app.Command("list-repos", "List the repositories that would be served.")

	renderCommand = app.Command("render", "Render a Markdown file to HTML.")
	renderFile    = renderCommand.Arg("file", "The Markdown file to render.").Required().ExistingFile()
	renderRef     = renderCommand.Flag("ref", "The reference that relative links point into.").Default("main").String()
	renderStyle   = renderCommand.Flag("style", "The highlighting style for fenced code.").Default(markdown.DefaultStyle).String()
)

func main() {
	app.HelpFlag.Short('h')

	var err error

	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case serveCommand.FullCommand():
		commands.Serve(*configPath)

	case listReposCommand.FullCommand():
		err = commands.ListRepositories(*configPath, os.Stdout)

	case renderCommand.FullCommand():
		err = commands.Render(*renderFile, commands.RenderOptions{
			Ref:   *renderRef,
			Style: *renderStyle,
		}, os.Stdout)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "rb-browser: %s\n", err)
		os.Exit(1)
	}
}
