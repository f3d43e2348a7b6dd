package registry

import (
	"strings"
	"time"
)

// Placeholder values until agent metadata is resolved from the token URI.
const (
	StatusActive   = "active"
	UnknownCreator = "Unknown"
)

// CreatedAtLayout is ISO-8601 in UTC with milliseconds.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Project builds the public view of one registration. It does no I/O.
// createdAt is the time of the read, not of the registration block.
func Project(raw RawRegistration, reputation, validation Summary, now time.Time) AgentData {
	id := raw.AgentID.String()
	return AgentData{
		ID:          id,
		Name:        "Agent #" + id,
		CreatorName: UnknownCreator,
		Description: raw.TokenURI,
		CreatedAt:   now.UTC().Format(CreatedAtLayout),
		Status:      StatusActive,
		Address:     strings.ToLower(raw.Owner.Hex()),
		Reputation:  reputation,
		Validation:  validation,
	}
}
