// File: cmd/suggestd/main.go
package main

import (
	"fmt"
	"os"

	"ropa-suggestions/internal/config"

	"github.com/spf13/cobra"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

type rootFlags struct {
	configPath string
	dev        bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "suggestd",
		Short:         "ROPA AI suggestion job orchestrator",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "run against an in-process fake backend")

	root.AddCommand(newServeCommand(flags), newJobsCommand(flags))
	return root
}

// load reads the config file; in dev mode a missing file means defaults.
func (f *rootFlags) load() (*config.Config, error) {
	if f.dev {
		if _, err := os.Stat(f.configPath); os.IsNotExist(err) {
			return config.Parse(nil, true)
		}
	}
	return config.LoadConfig(f.configPath, f.dev)
}
