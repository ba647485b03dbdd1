//go:build windows

package etl

import "os"

// posixOnlySignals is empty on Windows: SIGQUIT and SIGHUP have no Windows
// equivalent, matching cupyd's AttributeError-guarded skip on this platform.
func posixOnlySignals() []os.Signal {
	return nil
}
