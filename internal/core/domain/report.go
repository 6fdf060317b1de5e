package domain

import (
	"encoding/json"
	"time"
)

// ValidationReport records the outcome of one document check. The document
// itself is not kept, only its hash.
type ValidationReport struct {
	Seq           int64
	ID            string
	TenantID      string
	Collection    string
	SchemaVersion int64
	DocumentHash  string
	Valid         bool
	Violations    []Violation
	Actor         string
	CreatedAt     time.Time
}

// ReportFilter pages reports newest first. AfterSeq is exclusive.
type ReportFilter struct {
	AfterSeq int64
	Valid    *bool
	Limit    int
}

func (f ReportFilter) Validate() error {
	if f.AfterSeq < 0 || f.Limit < 0 {
		return ErrInvalidFilter
	}
	return nil
}

func MarshalViolations(v []Violation) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("[]")
	}
	b, _ := json.Marshal(v)
	return b
}
