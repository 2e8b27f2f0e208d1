package errors

import "sync"

var (
	defaultHandler *Handler
	defaultErr     error
	once           sync.Once
)

// DefaultHandler lazily creates the process-wide handler. The log directory
// is only honoured on the first call.
func DefaultHandler(logDir string) (*Handler, error) {
	once.Do(func() {
		defaultHandler, defaultErr = NewHandler(logDir)
	})
	return defaultHandler, defaultErr
}

// resetDefaultHandler resets the singleton for testing purposes
func resetDefaultHandler() {
	defaultHandler = nil
	defaultErr = nil
	once = sync.Once{}
}
