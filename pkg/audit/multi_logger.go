package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MultiLogger fans events out to several loggers
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewMultiLogger creates a synchronous multi-logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// SetAsync makes Log return immediately; failures are collected for Errors
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log implements Logger. In sync mode every logger is attempted and the
// first failure returned.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if m.async {
		// detach so request cancellation does not drop the write
		ctx = context.WithoutCancel(ctx)
		for _, logger := range m.loggers {
			m.wg.Add(1)
			go func(l Logger) {
				defer m.wg.Done()
				if err := l.Log(ctx, event); err != nil {
					m.mu.Lock()
					m.errs = append(m.errs, err)
					m.mu.Unlock()
				}
			}(logger)
		}
		return nil
	}

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wait blocks until pending async writes finish
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Errors drains the failures collected from async writes
func (m *MultiLogger) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := m.errs
	m.errs = nil
	return errs
}

// Close waits for pending writes and closes every logger
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}
