package audit

import (
	"context"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"
)

const (
	// SharedEventChannel is the general purpose channel every entry is copied to.
	SharedEventChannel = "Application"

	EventID       uint32 = 101
	EventCategory uint16 = 1
)

// Severity of an event channel entry.
type Severity int

const (
	SeverityInformation Severity = iota
	SeverityWarning
	SeverityError
)

// Entry is one event channel record.
type Entry struct {
	Message  string
	Severity Severity
	EventID  uint32
	Category uint16
}

// EventChannel is the OS event log boundary.
type EventChannel interface {
	// EnsureChannel creates the named channel if it does not exist yet.
	EnsureChannel(name string) error
	Write(channel string, entry Entry) error
}

// EventSinkOption configures an EventSink.
type EventSinkOption func(*EventSink)

// WithEventClock replaces time.Now for the event time element.
func WithEventClock(clock func() time.Time) EventSinkOption {
	return func(s *EventSink) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// EventSink writes detailed entries to the application event channel and to SharedEventChannel.
type EventSink struct {
	channel EventChannel
	appName func() (string, error)
	clock   func() time.Time
}

func NewEventSink(channel EventChannel, applicationName string, opts ...EventSinkOption) *EventSink {
	s := &EventSink{
		channel: channel,
		appName: applicationNameResolver(SinkEvent, applicationName),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventSink) Kind() SinkKind { return SinkEvent }

// LogMinimal is not available for event channels.
func (s *EventSink) LogMinimal(context.Context, string, *CapturedRequest) error {
	return errors.Wrap(ErrNotSupported, "event sink minimal entry")
}

// LogDetailed writes the XML block of req to the application channel, then to SharedEventChannel.
// Both writes are attempted.
func (s *EventSink) LogDetailed(_ context.Context, id string, _ Level, req *CapturedRequest, isRequest bool) error {
	appName, err := s.appName()
	if err != nil {
		return err
	}

	message, err := s.render(appName, id, req, isRequest)
	if err != nil {
		return newSinkWriteError(SinkEvent, appName, err)
	}

	entry := Entry{
		Message:  message,
		Severity: SeverityInformation,
		EventID:  EventID,
		Category: EventCategory,
	}

	if err := s.channel.EnsureChannel(appName); err != nil {
		return newSinkWriteError(SinkEvent, appName, errors.Wrap(err, "ensure channel"))
	}

	var werr error
	for _, channel := range []string{appName, SharedEventChannel} {
		if err := s.channel.Write(channel, entry); err != nil {
			werr = errors.CombineErrors(werr, errors.Wrapf(err, "write to %s", channel))
		}
	}
	if werr != nil {
		return newSinkWriteError(SinkEvent, appName, werr)
	}
	return nil
}

func (s *EventSink) render(appName, id string, req *CapturedRequest, isRequest bool) (string, error) {
	kind := "response"
	if isRequest {
		kind = "request"
	}

	// Application names need not be valid XML names, so the name is an attribute.
	doc := etree.NewDocument()
	app := doc.CreateElement("application")
	app.CreateAttr("name", appName)
	inner := app.CreateElement(kind)
	for _, kv := range [][2]string{
		{"eventtime", s.clock().Format(eventTimeLayout)},
		{"uuid", id},
		{"scheme", strings.ToUpper(req.Scheme)},
		{"servertime", req.ServerTime},
		{"serverprotocol", strings.ToUpper(req.ServerProtocol)},
		{"remoteaddress", req.RemoteAddr},
		{"remotehost", req.RemoteHost},
		{"localaddress", req.LocalAddr},
		{"httpmethod", strings.ToUpper(req.Method)},
		{"uri", req.URI},
		{"handlername", req.HandlerName},
		{"actionname", req.ActionName},
		{"headers", strings.TrimRight(req.RawHeaders, " \t\r\n")},
		{"contenttype", req.ContentType},
		{"requesttime", req.RequestTime},
	} {
		inner.CreateElement(kv[0]).SetText(kv[1])
	}
	doc.Indent(2)

	out, err := doc.WriteToString()
	if err != nil {
		return "", errors.Wrap(err, "render event xml")
	}
	return out, nil
}
