package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
)

// userDataStore manages the editor's persistent profile directory
// (§4.C step 5, §6 "User-data directory"). It is adapted from the
// k6's chromium.DataStore, which made a throwaway temp directory per
// browser launch and removed it on Cleanup; this bridge's user-data
// directory is the opposite — a single fixed, persistent path under the
// workspace that is never deleted by the bridge — so the fs abstraction
// fields are kept (for test injection) and there is no Cleanup step.
type userDataStore struct {
	fsMkdirAll   func(path string, perm os.FileMode) error
	fsWriteFile  func(path string, data []byte, perm os.FileMode) error
	fsStat       func(path string) (os.FileInfo, error)
}

func newUserDataStore() *userDataStore {
	return &userDataStore{
		fsMkdirAll:  os.MkdirAll,
		fsWriteFile: os.WriteFile,
		fsStat:      os.Stat,
	}
}

// firstRunSettings is the fixed seed written once when the user-data
// directory is created fresh (§6): workspace trust off, no startup
// editor, no tips, no release notes, no extension recommendations, no
// telemetry, native DOM dialogs suppressed.
var firstRunSettings = map[string]interface{}{
	"security.workspace.trust.enabled":        false,
	"workbench.startupEditor":                 "none",
	"workbench.tips.enabled":                   false,
	"update.showReleaseNotes":                  false,
	"extensions.ignoreRecommendations":         true,
	"telemetry.telemetryLevel":                 "off",
	"window.dialogStyle":                       "custom",
	"js-debug.unmapMissingSources":              false,
}

// ensure creates dir (and its User/ subdirectory) if absent, and on first
// creation seeds User/settings.json with firstRunSettings. It reports
// whether the directory was freshly created.
func (d *userDataStore) ensure(dir string) (created bool, err error) {
	if _, err := d.fsStat(dir); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("lifecycle: stat user-data dir: %w", err)
	}

	userDir := dir + string(os.PathSeparator) + "User"
	if err := d.fsMkdirAll(userDir, 0o755); err != nil {
		return false, fmt.Errorf("lifecycle: create user-data dir: %w", err)
	}

	buf, err := json.MarshalIndent(firstRunSettings, "", "  ")
	if err != nil {
		return false, fmt.Errorf("lifecycle: encode first-run settings: %w", err)
	}
	settingsPath := userDir + string(os.PathSeparator) + "settings.json"
	if err := d.fsWriteFile(settingsPath, buf, 0o644); err != nil {
		return false, fmt.Errorf("lifecycle: write first-run settings: %w", err)
	}
	return true, nil
}
