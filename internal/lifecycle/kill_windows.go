//go:build windows

package lifecycle

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// killAfterParent has no Pdeathsig equivalent on the Windows family; the
// k6 never needed this branch (kill_linux.go is POSIX-only), so the
// parent-death safety net here instead relies on the job object the editor
// itself assigns when the bridge registers its PID via the companion
// extension (§4.C step 10) plus the module-load exit handlers (§4.C "Shutdown handlers").
func killAfterParent(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}

// killProcessTree runs `taskkill /F /T /PID` (§4.C teardown step 4,
// Windows branch).
func killProcessTree(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("lifecycle: refusing to kill pid %d", pid)
	}
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("lifecycle: taskkill pid %d: %w", pid, err)
	}
	return nil
}

// discoverListeningPID parses `netstat -ano` for the LISTENING pid bound to
// port (§4.C step 9, Windows branch — the launched binary there is a
// launcher stub that forks the real process and exits).
func discoverListeningPID(port int) (int, error) {
	out, err := exec.Command("netstat", "-ano").Output()
	if err != nil {
		return 0, fmt.Errorf("lifecycle: netstat: %w", err)
	}

	needle := fmt.Sprintf(":%d", port)
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, needle) || !strings.Contains(line, "LISTENING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if pid, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("lifecycle: netstat found no LISTENING pid for port %d", port)
}

// killByUserDataDir enumerates processes whose command line contains
// userDataDir and kills each — the Windows-only last resort when the real
// PID is unknown and port-based rediscovery also fails (§4.C step 4b).
func killByUserDataDir(userDataDir string) error {
	out, err := exec.Command("wmic", "process", "get", "processid,commandline").Output()
	if err != nil {
		return fmt.Errorf("lifecycle: wmic enumerate processes: %w", err)
	}

	var killErr error
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, userDataDir) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		pidStr := fields[len(fields)-1]
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		if err := killProcessTree(pid); err != nil {
			killErr = err
		}
	}
	return killErr
}
