// Package config parses the bridge's command-line flags into an Options
// value. It splits flag definitions from the parsed result the way the
// k6's root command splits globalFlags (pflag definitions) from
// globalState (the resolved, injectable value tests construct directly
// without going through pflag at all).
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options holds every flag the bridge accepts, plus defaults applied when a
// flag is left unset. A zero Options is not valid; start from Defaults.
type Options struct {
	Workspace string
	EditorPath string

	NewWindow             bool
	SkipReleaseNotes       bool
	SkipWelcome            bool
	DisableExtensions      bool
	DisableGPU             bool
	DisableWorkspaceTrust  bool
	Verbose                bool
	Locale                 string
	EnableExtensions       []string
	PassthroughArgs        []string

	LogFormat string
	LogLevel  string

	// CompanionPipeOverride lets tests point the companion-extension
	// bridge client at a socket path other than the one deterministically
	// derived from Workspace.
	CompanionPipeOverride string
}

// Defaults returns an Options populated with the bridge's standard values,
// used both as the pflag default set and directly by tests that construct a
// state without parsing argv.
func Defaults() Options {
	return Options{
		LogFormat: "text",
		LogLevel:  "info",
	}
}

// FlagSet builds the pflag.FlagSet for the bridge's single root command and
// binds it to opts. Call Parse on the returned set (or let cobra do it) then
// read back opts.
func FlagSet(opts *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("editor-bridge", pflag.ContinueOnError)

	fs.StringVar(&opts.EditorPath, "editor-path", "", "path to the editor executable (defaults to companion-resolved process.execPath)")
	fs.BoolVar(&opts.NewWindow, "new-window", false, "force the editor to open a new window")
	fs.BoolVar(&opts.SkipReleaseNotes, "skip-release-notes", false, "hide the release notes page on launch")
	fs.BoolVar(&opts.SkipWelcome, "skip-welcome", false, "skip the welcome page on launch")
	fs.BoolVar(&opts.DisableExtensions, "disable-extensions", false, "disable all extensions except the companion extension")
	fs.BoolVar(&opts.DisableGPU, "disable-gpu", false, "force the software renderer")
	fs.BoolVar(&opts.DisableWorkspaceTrust, "disable-workspace-trust", false, "disable the workspace trust prompt")
	fs.BoolVar(&opts.Verbose, "verbose", false, "enable verbose editor logging")
	fs.StringVar(&opts.Locale, "locale", "", "UI locale tag passed to the editor")
	fs.StringArrayVar(&opts.EnableExtensions, "enable-extension", nil, "extension id to allow alongside the companion extension (repeatable)")

	fs.StringVar(&opts.LogFormat, "log-format", "text", "log output format: text or json")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "log level (logrus level names)")

	fs.StringVar(&opts.CompanionPipeOverride, "companion-pipe", "", "override the computed companion-extension bridge socket path (tests only)")

	return fs
}

// Validate checks field combinations flag parsing cannot express directly.
func (o Options) Validate() error {
	if o.Workspace == "" {
		return fmt.Errorf("config: workspace path is required")
	}
	switch o.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", o.LogFormat)
	}
	return nil
}
