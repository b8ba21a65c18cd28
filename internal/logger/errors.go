package logger

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrAppNameIsEmpty is returned if Log.AppName was not defined.
	ErrAppNameIsEmpty = errors.New("config Log.AppName can not be empty")

	// ErrServiceNameIsEmpty is returned if Log.ServiceName was not defined.
	ErrServiceNameIsEmpty = errors.New("config Log.ServiceName can not be empty")

	// ErrLogFileUnusable is returned when file logging is enabled but
	// Log.File.Path can not be created.
	ErrLogFileUnusable = errors.New("config Log.File.Path can not be created")
)

// ErrorHandler reports events zerolog could not write. Auth events are lost
// silently otherwise, stderr is the last resort.
func ErrorHandler(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "authgate: dropped log event: %v\n", err)
}
