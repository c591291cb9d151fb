//go:build !windows

package session

import (
	"os"
	"syscall"
)

// shutdownSignals end the session. SIGTSTP (Ctrl+Z) ends it instead of
// suspending the process.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGTSTP}
