//go:build windows

package companion

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

func pipePath(id string) string {
	return `\\.\pipe\editor-bridge-` + id
}

// dialPipe opens a Windows named pipe client handle. There is no portable
// net.Conn for named pipes in the standard library; golang.org/x/sys/windows
// exposes the raw CreateFile call this needs.
func dialPipe(ctx context.Context, path string, timeout time.Duration) (io.ReadWriteCloser, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		handle, err := windows.CreateFile(
			name,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			0,
			nil,
			windows.OPEN_EXISTING,
			0,
			0,
		)
		if err == nil {
			return os.NewFile(uintptr(handle), path), nil
		}
		if err != windows.ERROR_PIPE_BUSY || time.Now().After(deadline) {
			return nil, fmt.Errorf("companion: open pipe %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}
