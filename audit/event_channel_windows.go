//go:build windows

package audit

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows/svc/eventlog"
)

const supportedEventTypes = eventlog.Error | eventlog.Warning | eventlog.Info

// WindowsEventChannel writes to the Windows event log. Each channel is an event source.
// The event category is not exposed by the eventlog API and is dropped.
type WindowsEventChannel struct {
	mu   sync.Mutex
	logs map[string]*eventlog.Log
}

func NewWindowsEventChannel() *WindowsEventChannel {
	return &WindowsEventChannel{logs: make(map[string]*eventlog.Log)}
}

// NewSystemEventChannel returns the event channel of the host OS.
func NewSystemEventChannel() EventChannel {
	return NewWindowsEventChannel()
}

// EnsureChannel registers name as an event source. Registering an existing source is not an error.
func (c *WindowsEventChannel) EnsureChannel(name string) error {
	err := eventlog.InstallAsEventCreate(name, supportedEventTypes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return errors.Wrapf(err, "install event source %s", name)
	}
	return nil
}

func (c *WindowsEventChannel) Write(channel string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.logs[channel]
	if !ok {
		var err error
		l, err = eventlog.Open(channel)
		if err != nil {
			return errors.Wrapf(err, "open event log %s", channel)
		}
		c.logs[channel] = l
	}

	var err error
	switch entry.Severity {
	case SeverityError:
		err = l.Error(entry.EventID, entry.Message)
	case SeverityWarning:
		err = l.Warning(entry.EventID, entry.Message)
	default:
		err = l.Info(entry.EventID, entry.Message)
	}
	return errors.Wrapf(err, "write event log %s", channel)
}

func (c *WindowsEventChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for name, l := range c.logs {
		err = errors.CombineErrors(err, l.Close())
		delete(c.logs, name)
	}
	return err
}
