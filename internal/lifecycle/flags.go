package lifecycle

import (
	"fmt"
)

// LaunchOptions is the user-configurable subset of the command-line flags
// passed to the child editor (§6 flag table). It is populated from
// internal/config.Options by cmd/editor-bridge.
type LaunchOptions struct {
	EditorPath            string
	NewWindow             bool
	SkipReleaseNotes      bool
	SkipWelcome           bool
	DisableExtensions     bool
	DisableGPU            bool
	DisableWorkspaceTrust bool
	Verbose               bool
	Locale                string
	EnableExtensions      []string
	PassthroughArgs       []string
}

// buildCmdArgs assembles the editor's full argv (§6 flag table),
// generalizing k6's Allocator.buildCmdArgs (a flat map of
// --flag=value/--flag-if-true entries plus a trailing user-data-dir) into an
// explicit, ordered, always-vs-opt flag table, since this bridge's flags are
// fixed and domain-specific rather than an arbitrary pass-through map of
// browser switches.
func buildCmdArgs(cdpPort, inspectorPort int, extensionDevPath, userDataDir, targetFolder string, opts LaunchOptions) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", cdpPort),
		fmt.Sprintf("--inspect-extensions=%d", inspectorPort),
		fmt.Sprintf("--extensionDevelopmentPath=%s", extensionDevPath),
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
		"--disable-updates",
	}

	if opts.NewWindow {
		args = append(args, "--new-window")
	}
	if opts.SkipReleaseNotes {
		args = append(args, "--skip-release-notes")
	}
	if opts.SkipWelcome {
		args = append(args, "--skip-welcome")
	}
	if opts.DisableExtensions {
		args = append(args, "--disable-extensions")
	}
	if opts.DisableGPU {
		args = append(args, "--disable-gpu")
	}
	if opts.DisableWorkspaceTrust {
		args = append(args, "--disable-workspace-trust")
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	if opts.Locale != "" {
		args = append(args, "--locale="+opts.Locale)
	}
	for _, id := range opts.EnableExtensions {
		args = append(args, "--enable-extension="+id)
	}
	args = append(args, opts.PassthroughArgs...)

	// targetFolder is positional and must be last (§6).
	args = append(args, targetFolder)
	return args
}

// editorEnvPrefix is the reserved environment-variable prefix the host
// editor uses for its own IPC hooks; any variable starting with it must be
// scrubbed from the child's environment so it does not mistake itself for
// being launched inside the parent editor (§4.C step 7).
const editorEnvPrefix = "VSCODE_"

// scrubbedRuntimeOverrides are the two known runtime environment overrides
// that must also be removed even though they do not share the reserved
// prefix (§4.C step 7: "plus two known runtime overrides").
var scrubbedRuntimeOverrides = []string{
	"ELECTRON_RUN_AS_NODE",
	"NODE_OPTIONS",
}

// scrubEnv filters parentEnv (as returned by os.Environ()) down to the set
// safe to hand to the spawned editor.
func scrubEnv(parentEnv []string) []string {
	out := make([]string, 0, len(parentEnv))
	for _, kv := range parentEnv {
		if hasEditorPrefix(kv) || isScrubbedOverride(kv) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func hasEditorPrefix(kv string) bool {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return len(kv[:i]) >= len(editorEnvPrefix) && kv[:len(editorEnvPrefix)] == editorEnvPrefix
		}
	}
	return false
}

func isScrubbedOverride(kv string) bool {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			key := kv[:i]
			for _, blocked := range scrubbedRuntimeOverrides {
				if key == blocked {
					return true
				}
			}
			return false
		}
	}
	return false
}
