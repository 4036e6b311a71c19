package lifecycle

import (
	"fmt"
	"net"
)

// allocatePort opens a listener on port 0, reads back the OS-assigned port,
// and closes it immediately so the editor process can bind it instead
// (§4.C step 4). There is an unavoidable race between close and the child
// binding it, which the 30s debug-port poll (pollDebugPort) absorbs.
func allocatePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("lifecycle: allocate port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// allocateTwoPorts allocates the remote-debug and extension-inspector ports
// (§4.C step 4), retrying individually if two opens racily collide.
func allocateTwoPorts() (cdpPort, inspectorPort int, err error) {
	cdpPort, err = allocatePort()
	if err != nil {
		return 0, 0, err
	}
	inspectorPort, err = allocatePort()
	if err != nil {
		return 0, 0, err
	}
	if cdpPort == inspectorPort {
		inspectorPort, err = allocatePort()
		if err != nil {
			return 0, 0, err
		}
	}
	return cdpPort, inspectorPort, nil
}
