//go:build !windows && !plan9

package audit

import (
	"log/syslog"
	"sync"

	"github.com/cockroachdb/errors"
)

// SyslogOption configures a SyslogChannel.
type SyslogOption func(*SyslogChannel)

// WithSyslogAddress sends entries to a remote daemon, e.g. ("udp", "localhost:514").
// The default is the local syslog socket.
func WithSyslogAddress(network, raddr string) SyslogOption {
	return func(c *SyslogChannel) {
		c.network = network
		c.raddr = raddr
	}
}

// WithSyslogFacility overrides the default LOG_LOCAL0 facility.
func WithSyslogFacility(facility syslog.Priority) SyslogOption {
	return func(c *SyslogChannel) {
		c.facility = facility
	}
}

// SyslogChannel maps event channels to syslog tags; one writer is kept per channel.
type SyslogChannel struct {
	network  string
	raddr    string
	facility syslog.Priority

	mu      sync.Mutex
	writers map[string]*syslog.Writer
}

func NewSyslogChannel(opts ...SyslogOption) *SyslogChannel {
	c := &SyslogChannel{
		facility: syslog.LOG_LOCAL0,
		writers:  make(map[string]*syslog.Writer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSystemEventChannel returns the event channel of the host OS.
func NewSystemEventChannel() EventChannel {
	return NewSyslogChannel()
}

// EnsureChannel dials the writer for name.
func (c *SyslogChannel) EnsureChannel(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.writerLocked(name)
	return err
}

// Write sends entry under the channel tag. A failed writer is dropped so the next
// write redials.
func (c *SyslogChannel) Write(channel string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, err := c.writerLocked(channel)
	if err != nil {
		return err
	}

	switch entry.Severity {
	case SeverityError:
		err = w.Err(entry.Message)
	case SeverityWarning:
		err = w.Warning(entry.Message)
	default:
		err = w.Info(entry.Message)
	}
	if err != nil {
		_ = w.Close()
		delete(c.writers, channel)
		return errors.Wrapf(err, "syslog write to %s", channel)
	}
	return nil
}

func (c *SyslogChannel) writerLocked(channel string) (*syslog.Writer, error) {
	if w, ok := c.writers[channel]; ok {
		return w, nil
	}
	w, err := syslog.Dial(c.network, c.raddr, c.facility|syslog.LOG_INFO, channel)
	if err != nil {
		return nil, errors.Wrapf(err, "syslog dial for %s", channel)
	}
	c.writers[channel] = w
	return w, nil
}

// Close closes every writer.
func (c *SyslogChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for name, w := range c.writers {
		err = errors.CombineErrors(err, w.Close())
		delete(c.writers, name)
	}
	return err
}
