package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCmdArgsAlwaysFlagsAndOrder(t *testing.T) {
	args := buildCmdArgs(9222, 9229, "/ext/dev", "/udd", "/workspace", LaunchOptions{})

	assert.Equal(t, []string{
		"--remote-debugging-port=9222",
		"--inspect-extensions=9229",
		"--extensionDevelopmentPath=/ext/dev",
		"--user-data-dir=/udd",
		"--disable-updates",
		"/workspace",
	}, args)
}

func TestBuildCmdArgsOptionalFlagsAndPositionalLast(t *testing.T) {
	args := buildCmdArgs(1, 2, "/ext", "/udd", "/workspace", LaunchOptions{
		NewWindow:             true,
		SkipReleaseNotes:      true,
		SkipWelcome:           true,
		DisableExtensions:     true,
		DisableGPU:            true,
		DisableWorkspaceTrust: true,
		Verbose:               true,
		Locale:                "fr",
		EnableExtensions:      []string{"a.b", "c.d"},
		PassthroughArgs:       []string{"--extra=1"},
	})

	assert.Equal(t, "/workspace", args[len(args)-1])
	assert.Contains(t, args, "--new-window")
	assert.Contains(t, args, "--skip-release-notes")
	assert.Contains(t, args, "--skip-welcome")
	assert.Contains(t, args, "--disable-extensions")
	assert.Contains(t, args, "--disable-gpu")
	assert.Contains(t, args, "--disable-workspace-trust")
	assert.Contains(t, args, "--verbose")
	assert.Contains(t, args, "--locale=fr")
	assert.Contains(t, args, "--enable-extension=a.b")
	assert.Contains(t, args, "--enable-extension=c.d")
	assert.Contains(t, args, "--extra=1")
}

func TestScrubEnvRemovesEditorPrefixAndOverrides(t *testing.T) {
	in := []string{
		"VSCODE_IPC_HOOK=/tmp/sock",
		"ELECTRON_RUN_AS_NODE=1",
		"NODE_OPTIONS=--inspect",
		"PATH=/usr/bin",
		"HOME=/home/me",
	}
	out := scrubEnv(in)
	assert.NotContains(t, out, "VSCODE_IPC_HOOK=/tmp/sock")
	assert.NotContains(t, out, "ELECTRON_RUN_AS_NODE=1")
	assert.NotContains(t, out, "NODE_OPTIONS=--inspect")
	assert.Contains(t, out, "PATH=/usr/bin")
	assert.Contains(t, out, "HOME=/home/me")
}
