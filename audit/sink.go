package audit

import "context"

// SinkKind names a persistence target.
type SinkKind string

const (
	SinkFile     SinkKind = "file"
	SinkDatabase SinkKind = "database"
	SinkEvent    SinkKind = "event"
)

func (k SinkKind) String() string { return string(k) }

// Sink persists audit entries. Implementations must be safe for concurrent use.
type Sink interface {
	Kind() SinkKind

	// LogMinimal writes the always-on summary of a call.
	LogMinimal(ctx context.Context, id string, req *CapturedRequest) error

	// LogDetailed writes the level-formatted entry of a call.
	LogDetailed(ctx context.Context, id string, level Level, req *CapturedRequest, isRequest bool) error
}

// Mask enables detailed entries per sink for one call.
type Mask struct {
	File     bool
	Database bool
	Event    bool
}

// Enabled reports the bit of kind.
func (m Mask) Enabled(kind SinkKind) bool {
	switch kind {
	case SinkFile:
		return m.File
	case SinkDatabase:
		return m.Database
	case SinkEvent:
		return m.Event
	default:
		return false
	}
}

// detailedOrder is the fixed order detailed entries are written in.
var detailedOrder = []SinkKind{SinkFile, SinkDatabase, SinkEvent}
