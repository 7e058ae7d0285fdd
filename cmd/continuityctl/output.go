package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/continuity-store/continuity/core/config"
)

var (
	colorPass = color.New(color.FgGreen, color.Bold)
	colorWarn = color.New(color.FgYellow, color.Bold)
	colorFail = color.New(color.FgRed, color.Bold)
)

// commonFlags binds the --storage-path/--config flags every storage-reading
// subcommand accepts, following config's own precedence: an explicit
// storage path override wins over whatever the config file says.
type commonFlags struct {
	configPath  string
	storagePath string
}

func bindCommonFlags(flagSet *pflag.FlagSet) *commonFlags {
	flags := &commonFlags{}
	flagSet.StringVar(&flags.configPath, "config", config.DefaultPath, "path to continuity.yaml or continuity.toml")
	flagSet.StringVar(&flags.storagePath, "storage-path", "", "override the configured storage path")
	return flags
}

func (f *commonFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath, true)
	if err != nil {
		return config.Config{}, err
	}
	if f.storagePath != "" {
		cfg.StoragePath = config.ExpandHome(f.storagePath)
	}
	return cfg, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func writeJSON(value any, exitCode int) int {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl: encode output: %v\n", err)
		return exitStoreError
	}
	fmt.Println(string(encoded))
	return exitCode
}

func printStatusLine(label string, ok bool, detail string) {
	if ok {
		colorPass.Printf("PASS")
	} else {
		colorFail.Printf("FAIL")
	}
	fmt.Printf(" %-24s %s\n", label, detail)
}

func printWarnLine(label string, detail string) {
	colorWarn.Printf("WARN")
	fmt.Printf(" %-24s %s\n", label, detail)
}
