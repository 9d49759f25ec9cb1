package logger

import "fmt"

// Adapter can be used as an adapter for logging from other frameworks/libraries.
// Just keep adding the required methods to make it function.
type Adapter Logger

// Log satisfies the dd-trace-go logger interface.
func (log *Adapter) Log(msg string) {
	if log == nil {
		return
	}
	(*Logger)(log).Info(msg)
}

// Printf satisfies the gorm logger writer interface. SQL traces are debug noise.
func (log *Adapter) Printf(format string, args ...interface{}) {
	if log == nil {
		return
	}
	(*Logger)(log).Debug(fmt.Sprintf(format, args...))
}
