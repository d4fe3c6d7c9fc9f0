/*Package pmthread sets the Go runtime's thread count. cmd/pmanager calls
it before driving a batch of in-process local ranks so a misconfigured
thread count fails loudly instead of silently oversubscribing the host.
*/
package pmthread

import (
	"runtime"

	"github.com/phil-mansfield/pmanager/perr"
)

// SetThreads sets GOMAXPROCS to n, or to runtime.NumCPU() if n is
// negative, meaning "use every core". It reports a ConfigError rather
// than exiting the process, consistent with this module's library code
// never exiting on its caller's behalf.
func SetThreads(n int) error {
	if n < 0 {
		n = runtime.NumCPU()
	}
	if n > runtime.NumCPU() {
		return perr.Newf(perr.ConfigError,
			"pmthread: %d threads requested, but this host only has %d cores; use -1 to request every core", n, runtime.NumCPU())
	}
	runtime.GOMAXPROCS(n)
	return nil
}
