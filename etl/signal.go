package etl

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dshills/etlgraph-go/etl/observe"
)

// signalHandler installs the process's termination signals so the first one
// received raises stop and records which signal fired (for InterruptedETL's
// message). It is idempotent — only the first signal has any effect, every
// later one is ignored until Stop restores the original handlers. Grounded
// on cupyd's core/communication/interruption_handler.py.
type signalHandler struct {
	stop *Flag
	log  *observe.Logger

	mu        sync.Mutex
	fired     bool
	lastSig   string
	ch        chan os.Signal
	done      chan struct{}
}

func newSignalHandler(stop *Flag, log *observe.Logger) *signalHandler {
	return &signalHandler{stop: stop, log: log.WithComponent("interrupt")}
}

// Start begins listening for termination signals. The platform-specific
// posixOnlySignals (defined in signal_unix.go / signal_windows.go) are
// appended when the host supports them, mirroring cupyd's AttributeError
// guard around SIGQUIT/SIGHUP on non-POSIX hosts.
func (h *signalHandler) Start() {
	sigs := append([]os.Signal{os.Interrupt, syscall.SIGTERM}, posixOnlySignals()...)
	h.ch = make(chan os.Signal, 1)
	h.done = make(chan struct{})
	signal.Notify(h.ch, sigs...)
	go func() {
		for {
			select {
			case sig, ok := <-h.ch:
				if !ok {
					return
				}
				h.handle(sig)
			case <-h.done:
				return
			}
		}
	}()
}

func (h *signalHandler) handle(sig os.Signal) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	h.lastSig = sig.String()
	h.mu.Unlock()
	h.log.Warn("received termination signal, stopping", "signal", sig.String())
	h.stop.Raise()
}

// Interrupted reports whether this handler is the reason stop is raised, and
// which signal caused it.
func (h *signalHandler) Interrupted() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired, h.lastSig
}

// Stop restores the original signal disposition, matching cupyd's
// restore_handlers() teardown (see DESIGN.md, Open Question 2).
func (h *signalHandler) Stop() {
	signal.Stop(h.ch)
	close(h.done)
}
