// Package events defines the operational event structures emitted by the
// audit workers and the health monitor.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindAuditStart    Kind = "AUDIT_START"
	KindAuditDone     Kind = "AUDIT_DONE"
	KindAuditError    Kind = "AUDIT_ERROR"
	KindAuditCanceled Kind = "AUDIT_CANCELED"
	KindPageFetch     Kind = "PAGE_FETCH"
	KindAlertRaised   Kind = "ALERT_RAISED"
	KindAlertResolved Kind = "ALERT_RESOLVED"
	KindRemedy        Kind = "REMEDY_APPLIED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for page fetches.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single operational milestone. Audit kinds carry a
// JobID; health kinds carry a Check name instead.
type Event struct {
	// JobID identifies an audit run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which milestone occurred.
	Kind Kind
	// Site optionally scopes page events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// Bytes carries the response size for page fetches.
	Bytes int64
	// Pages increments by one for each completed page.
	Pages int64
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures execution latency for fetches and audit completions.
	Dur time.Duration
	// Check names the health check for alert and remedy kinds.
	Check string
	// Remedy names the remediation applied for KindRemedy events.
	Remedy string
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindAuditStart, KindAuditDone, KindAuditError, KindAuditCanceled:
		if e.JobID == [16]byte{} {
			return errors.New("audit events require a job id")
		}
	case KindPageFetch:
		if e.JobID == [16]byte{} {
			return errors.New("page fetch requires a job id")
		}
		if e.Site == "" {
			return errors.New("page fetch requires site")
		}
		if e.StatusClass == "" {
			return errors.New("page fetch requires status class")
		}
	case KindAlertRaised, KindAlertResolved:
		if e.Check == "" {
			return errors.New("alert events require a check name")
		}
	case KindRemedy:
		if e.Check == "" {
			return errors.New("remedy events require a check name")
		}
		if e.Remedy == "" {
			return errors.New("remedy events require a remedy name")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for page events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
