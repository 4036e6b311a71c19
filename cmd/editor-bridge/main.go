// Command editor-bridge is the bridge's single entry point: a cobra root
// command (no subcommands, §6) that parses flags, wires every
// internal package together, and runs the stdio tool-call loop until the
// agent closes stdin or the process is signalled.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/brennhill/editor-control-bridge/internal/a11y"
	"github.com/brennhill/editor-control-bridge/internal/codeintel"
	"github.com/brennhill/editor-control-bridge/internal/companion"
	"github.com/brennhill/editor-control-bridge/internal/config"
	"github.com/brennhill/editor-control-bridge/internal/dispatch"
	"github.com/brennhill/editor-control-bridge/internal/hotreload"
	"github.com/brennhill/editor-control-bridge/internal/ledger"
	"github.com/brennhill/editor-control-bridge/internal/lifecycle"
	"github.com/brennhill/editor-control-bridge/internal/logging"
	"github.com/brennhill/editor-control-bridge/internal/mcpio"
	"github.com/brennhill/editor-control-bridge/internal/tools"
)

func main() {
	opts := config.Defaults()
	root := &cobra.Command{
		Use:   "editor-bridge <workspace>",
		Short: "Drive a graphical editor over its remote-debugging protocol for an AI agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Workspace = args[0]
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
		SilenceUsage: true,
	}
	root.Flags().AddFlagSet(config.FlagSet(&opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts config.Options) error {
	logLevel := opts.LogLevel
	if opts.Verbose {
		logLevel = "debug"
	}
	logger, err := logging.New(logging.Format(opts.LogFormat), logLevel, os.Stderr)
	if err != nil {
		return fmt.Errorf("editor-bridge: build logger: %w", err)
	}
	log := logging.Named(logger, "main")

	sockPath := opts.CompanionPipeOverride
	if sockPath == "" {
		sockPath = companion.DerivePath(opts.Workspace)
	}
	companionClient := companion.New(sockPath)

	manager := lifecycle.New(lifecycle.Config{
		Workspace:        opts.Workspace,
		ExtensionDevPath: extensionDevPath(),
		TitleSignature:   "editor-control-bridge",
		Options: lifecycle.LaunchOptions{
			EditorPath:            opts.EditorPath,
			NewWindow:             opts.NewWindow,
			SkipReleaseNotes:      opts.SkipReleaseNotes,
			SkipWelcome:           opts.SkipWelcome,
			DisableExtensions:     opts.DisableExtensions,
			DisableGPU:            opts.DisableGPU,
			DisableWorkspaceTrust: opts.DisableWorkspaceTrust,
			Verbose:               opts.Verbose,
			Locale:                opts.Locale,
			EnableExtensions:      opts.EnableExtensions,
			PassthroughArgs:       opts.PassthroughArgs,
		},
		Companion: companionClient,
		Logger:    logging.Named(logger, "lifecycle"),
	})

	manager.OnUserClosed(func(error) { os.Exit(0) })
	manager.InstallShutdownHandlers(os.Exit)

	engine := a11y.NewEngine()
	led := ledger.New()
	codeIntel := codeintel.New(companionClient)

	deps := tools.Deps{Manager: manager, Engine: engine, CodeIntel: codeIntel}

	d := dispatch.New()
	d.Manager = manager
	d.Companion = companionClient
	d.Ledger = led
	d.Snapshot = deps.SnapshotFetcher()
	d.Logger = log

	wireHotReload(d, companionClient)
	tools.Register(d, deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("editor-bridge: panic: %v", r)
			manager.HandlePanic(ctx, os.Exit)
		}
	}()

	return serve(ctx, manager, d)
}

// wireHotReload attaches the bridge's own self-rebuild controller and the
// companion extension's controller when their source directories are
// configured. Both are opt-in: a bridge running from a release build with
// no source tree alongside it simply never triggers either hot-reload path
// (§4.G steps 1, 2 and 4 become no-ops when Hotreload/ExtensionHotreload are
// nil, per dispatch.checkSelfHotReload/checkExtensionHotReload).
func wireHotReload(d *dispatch.Dispatcher, companionClient *companion.Client) {
	if selfSrc := os.Getenv("EDITOR_BRIDGE_SRC_DIR"); selfSrc != "" {
		if exe, err := os.Executable(); err == nil {
			d.Hotreload = hotreload.New(selfSrc, exe, defaultBuildCommand(selfSrc, exe), time.Now(), companionClient)
			if d.Hotreload.MarkerExists() {
				d.MarkRestarted()
			}
		}
	}
	if extSrc := os.Getenv("EDITOR_BRIDGE_EXTENSION_SRC_DIR"); extSrc != "" {
		if extOut := os.Getenv("EDITOR_BRIDGE_EXTENSION_BUILD_OUTPUT"); extOut != "" {
			d.ExtensionHotreload = hotreload.New(extSrc, extOut, defaultBuildCommand(extSrc, extOut), time.Now(), companionClient)
		}
	}
}

// serve runs the stdin-to-stdout tool-call loop until the agent closes
// stdin (§4.C "Shutdown handlers").
func serve(ctx context.Context, manager *lifecycle.Manager, d *dispatch.Dispatcher) error {
	reader := mcpio.NewReader(os.Stdin)
	writer := mcpio.NewWriter(os.Stdout)

	for {
		req, err := reader.Next()
		if err == io.EOF {
			manager.HandleStdinEOF(os.Exit)
			return nil
		}
		if err != nil {
			return fmt.Errorf("editor-bridge: read request: %w", err)
		}

		resp, shouldExit := d.Dispatch(ctx, req.Params)
		resp.ID = req.ID
		if werr := writer.Write(resp); werr != nil {
			return fmt.Errorf("editor-bridge: write response: %w", werr)
		}
		if shouldExit {
			os.Exit(0)
		}
	}
}

// extensionDevPath resolves the companion extension's unpacked source
// directory, shipped alongside this binary in a sibling "extension" folder.
func extensionDevPath() string {
	if override := os.Getenv("EDITOR_BRIDGE_EXTENSION_PATH"); override != "" {
		return override
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "extension")
}

func defaultBuildCommand(srcDir, output string) []string {
	return []string{"go", "build", "-o", output, srcDir}
}
