// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventIdentifierRejected is logged when a schema, table or column name
	// read from a CSN file or a data source catalog fails screening.
	EventIdentifierRejected SecurityEventType = "identifier_rejected"
	// EventSampleQuery is logged for every sampling query sent to a data source.
	// High volume; emitted at DEBUG.
	EventSampleQuery SecurityEventType = "sample_query"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	Source    string            `json:"source,omitempty"` // data source type
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// IdentifierDetails describes a rejected identifier.
type IdentifierDetails struct {
	Kind        string `json:"kind"` // schema, table or column
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint,omitempty"` // libinjection fingerprint
	Table       string `json:"table,omitempty"`
}

// SecurityAuditor logs security events under the "security_audit" logger name.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogIdentifierRejected records an identifier that was refused before it
// could be quoted into a query. A libinjection match is critical; any other
// rejection (empty name, quote or terminator characters) is a warning.
func (a *SecurityAuditor) LogIdentifierRejected(source string, details IdentifierDetails) {
	severity := "warning"
	if details.Fingerprint != "" {
		severity = "critical"
	}

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventIdentifierRejected,
		Source:    source,
		Details:   details,
		Severity:  severity,
	}
	// Marshaling known types cannot fail
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("source", source),
		zap.String("kind", details.Kind),
		zap.String("table", details.Table),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", severity),
	}
	if severity == "critical" {
		a.logger.Error("SQL injection pattern in identifier", fields...)
		return
	}
	a.logger.Warn("Identifier rejected", fields...)
}

// LogSampleQuery records a sampling query sent to a data source.
func (a *SecurityAuditor) LogSampleQuery(source, table, query string) {
	if ce := a.logger.Check(zap.DebugLevel, "Sample query executed"); ce != nil {
		event := SecurityEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventSampleQuery,
			Source:    source,
			Details:   map[string]string{"table": table, "query": query},
			Severity:  "info",
		}
		eventJSON, _ := json.Marshal(event)
		ce.Write(
			zap.String("event_json", string(eventJSON)),
			zap.String("source", source),
			zap.String("table", table),
			zap.String("severity", "info"),
		)
	}
}
