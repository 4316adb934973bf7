package hooks

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/inercia/comfyone/internal/logging"
)

// ShutdownFunc performs cleanup. It receives the shutdown reason.
type ShutdownFunc func(reason string)

// ShutdownManager runs cleanup exactly once, on a signal or on an explicit
// Shutdown call. Resources such as the API client are handed to it with
// AddCleanup so their owner is explicit.
//
// It is safe for concurrent use.
type ShutdownManager struct {
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}
	reason   string
	cleanups []ShutdownFunc

	ctx    context.Context
	cancel context.CancelFunc
	stop   func()
}

// NewShutdownManager creates a manager. Signals are not handled until Start.
func NewShutdownManager() *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled as soon as shutdown begins, before cleanups run.
// Long-running commands wait on it.
func (sm *ShutdownManager) Context() context.Context {
	return sm.ctx
}

// AddCleanup registers fn. Cleanups run in reverse registration order, so a
// resource registered after its dependency is released first.
func (sm *ShutdownManager) AddCleanup(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cleanups = append(sm.cleanups, fn)
}

// Start listens for SIGINT and SIGTERM and shuts down on the first one.
func (sm *ShutdownManager) Start() {
	logger := logging.Shutdown()
	logger.Debug("Shutdown manager started, listening for signals")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sm.mu.Lock()
	sm.stop = func() { signal.Stop(sigChan) }
	sm.mu.Unlock()

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Signal received, initiating shutdown", "signal", sig.String())
			sm.Shutdown("signal:" + sig.String())
		case <-sm.done:
		}
	}()
}

// Shutdown runs the cleanups with reason. Only the first call does any work;
// every call blocks until cleanup is complete.
func (sm *ShutdownManager) Shutdown(reason string) {
	sm.once.Do(func() {
		sm.doShutdown(reason)
	})
	<-sm.done
}

func (sm *ShutdownManager) doShutdown(reason string) {
	logger := logging.Shutdown()
	logger.Debug("Starting shutdown sequence", "reason", reason)

	sm.cancel()

	sm.mu.Lock()
	sm.reason = reason
	cleanups := make([]ShutdownFunc, len(sm.cleanups))
	copy(cleanups, sm.cleanups)
	stop := sm.stop
	sm.mu.Unlock()

	if stop != nil {
		stop()
	}

	for i := len(cleanups) - 1; i >= 0; i-- {
		logger.Debug("Running cleanup function", "index", i, "total", len(cleanups))
		cleanups[i](reason)
	}

	logger.Debug("Shutdown sequence complete", "reason", reason)
	close(sm.done)
}

// Done is closed when shutdown is complete.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// Reason returns the shutdown reason, or "" before shutdown.
func (sm *ShutdownManager) Reason() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.reason
}
