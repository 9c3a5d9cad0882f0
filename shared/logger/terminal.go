//go:build !windows

package logger

import (
	"os"

	"golang.org/x/sys/unix"
)

// stderrIsTerminal reports whether stderr is attached to a terminal,
// deciding whether log output gets colored.
func stderrIsTerminal() bool {
	_, err := unix.IoctlGetTermios(int(os.Stderr.Fd()), ioctlReadTermios)
	return err == nil
}
