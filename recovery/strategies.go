package recovery

import (
	"fmt"
	"sync"

	"github.com/wudi/pdfsteg/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy repairs what it can and keeps a record of every problem
// it let through.
type LenientStrategy struct {
	Logger observability.Logger

	mu     sync.Mutex
	Errors []error
}

func NewLenientStrategy(logger observability.Logger) *LenientStrategy {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &LenientStrategy{Logger: logger}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.mu.Lock()
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	s.Logger.Warn("recovered from malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Error("error", err))
	return ActionFix
}

// Recorded returns a copy of the errors seen so far.
func (s *LenientStrategy) Recorded() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.Errors...)
}
