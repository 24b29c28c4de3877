package audit

import (
	"strings"
	"time"
)

// Action is the verb recorded for an audited operation.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// Domain verbs used by lending workflows.
	ActionExport Action = "export"
	ActionScreen Action = "screen"
)

// Upper returns the action in upper case for log lines.
func (a Action) Upper() string { return strings.ToUpper(string(a)) }

// Level classifies how sensitive an operation is. Critical operations are
// additionally surfaced to the log collector after they are persisted.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelCritical Level = "critical"
)

// Compliance regimes an operation can be tagged with.
const (
	ComplianceGLBA        = "GLBA"
	ComplianceOFAC        = "OFAC"
	ComplianceFCRA        = "FCRA"
	ComplianceRouteOne    = "RouteOne"
	ComplianceDealerTrack = "DealerTrack"
)

// Status is the outcome of an audited invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Actor sentinels used when no authenticated user is present.
const (
	AnonymousUserID  = "anonymous"
	UnknownUserEmail = "unknown"
	UnknownUserAgent = "unknown"
)

// DefaultErrorCode is recorded when a failing operation's error carries no code.
const DefaultErrorCode = 500

// Metadata declares what to audit for a single operation. It is attached once
// at route registration and never changes afterwards.
type Metadata struct {
	Action     Action
	Resource   string
	Level      Level
	PII        bool
	Compliance []string
}

// Critical reports whether records for this operation must be surfaced to the
// log collector.
func (m Metadata) Critical() bool {
	return m.Level == LevelCritical || m.PII
}

func (m Metadata) clone() Metadata {
	out := m
	out.Compliance = append([]string{}, m.Compliance...)
	return out
}

// Record is one persisted row describing a single audited invocation.
// ID and Timestamp are assigned by the store.
type Record struct {
	ID        string
	Timestamp time.Time

	UserID    string
	UserEmail string

	Action   Action
	Resource string

	// Optional identifiers; empty means absent.
	ResourceID string
	BuyerID    string
	VehicleID  string
	DealID     string

	Method    string
	URL       string
	IPAddress string
	UserAgent string

	Status       Status
	DurationMS   int64
	ErrorMessage string
	ErrorCode    int

	Level      Level
	PII        bool
	Compliance []string

	RequestID string
	TraceID   string

	Metadata Sanitized
}

// Critical reports whether the record must be surfaced to the log collector.
func (r Record) Critical() bool {
	return r.Level == LevelCritical || r.PII
}

// Sanitized is the request context kept alongside a record. Body values are
// never stored, only the names of the top-level body keys.
type Sanitized struct {
	Params   map[string]string   `json:"params"`
	Query    map[string][]string `json:"query"`
	BodyKeys []string            `json:"bodyKeys"`
	Client   *ClientInfo         `json:"client,omitempty"`
}

// ClientInfo summarises the caller's user agent.
type ClientInfo struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
}
