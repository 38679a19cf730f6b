package trace

import (
	"github.com/pkg/errors"
)

var (
	ErrAlreadyAttached   = errors.New("tracer is already attached")
	ErrNotAttached       = errors.New("tracer is not attached")
	ErrSessionInProgress = errors.New("instrumentation session already in progress")
)
