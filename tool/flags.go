package tool

import (
	"github.com/spf13/pflag"

	"github.com/moyoez/partyline-console/types"
)

// BindFlags registers the flags shared by every command.
func BindFlags(fs *pflag.FlagSet, cfg *types.Config) {
	fs.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	fs.StringVar(&cfg.UseConfigPath, "config", "", "console config file (default ./partyline.yaml)")
	fs.StringVar(&cfg.UseBase, "base", "", "collaborator base address, e.g. http://intercom-a.local:8080 (overrides "+EnvAPIBase+")")
}

// BindRunFlags registers the flags of the long-running console.
func BindRunFlags(fs *pflag.FlagSet, cfg *types.Config) {
	fs.IntVar(&cfg.UsePort, "port", 0, "dashboard listen port")
	fs.BoolVar(&cfg.Hidden, "hidden", false, "start suspended until a dashboard reports it is visible")
}

// BindDownloadFlags registers the flags of download-mix.
func BindDownloadFlags(fs *pflag.FlagSet, cfg *types.Config) {
	fs.StringVarP(&cfg.UseDownload, "out", "o", "", "directory to save the mix into")
}
