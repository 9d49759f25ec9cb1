package store

import "time"

// APILog is one detailed audit entry. Field names match the procedure parameter names.
type APILog struct {
	ID               uint `gorm:"primaryKey"`
	ApplicationName  string
	ServerEventTime  time.Time
	RequestURI       string
	RequestMethod    string
	RequestUuid      string `gorm:"index"` //nolint:revive
	RequestEventTime time.Time
	IsRequest        bool
	ServerTime       time.Time
	ServerProtocol   string
	IpLocalAddress   string //nolint:revive
	IpRemoteAddress  string //nolint:revive
	RemoteHost       string
	ControllerName   string
	ActionName       string
	ServerPort       int
	IsFile           bool
	ModuleVersionId  string //nolint:revive
	ModuleName       string
	Parameters       string
	HeadersXML       string
	BodyContent      *string
}

func (APILog) TableName() string { return "api_logs" }
