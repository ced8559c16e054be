package main

import (
	"flag"

	"github.com/tliron/commonlog"

	"github.com/tycholang/tycho/server"
)

// cmdLSP starts the language server on stdio.
func cmdLSP(args []string) error {
	fs := flag.NewFlagSet("lsp", flag.ExitOnError)
	verbosity := fs.Int("verbosity", 1, "Log verbosity (higher is noisier)")
	logFile := fs.String("log", "", "Log file path (default: stderr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// The LSP protocol owns stdout, so logs go to stderr or a file.
	var path *string
	if *logFile != "" {
		path = logFile
	}
	commonlog.Configure(*verbosity, path)

	return server.NewLSP().Run()
}
