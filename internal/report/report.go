// Package report defines the citizen report shape consumed by the poller and
// the Source contract that supplies report snapshots.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/geo"
)

// ID is an opaque report identifier. The API emits it as a JSON string or
// integer depending on the backend; both decode to the same value.
type ID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode report id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode report id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Report is a single citizen report. Only ID, Coordinates and
// ReportedAtTimestamp are interpreted; the rest is display data.
type Report struct {
	ID                  ID        `json:"id"`
	Title               string    `json:"title"`
	Category            string    `json:"category"`
	Status              string    `json:"status,omitempty"`
	Coordinates         geo.Point `json:"coordinates"`
	ReportedAtTimestamp int64     `json:"reportedAtTimestamp"`
}

// ReportedAt returns the creation instant.
func (r Report) ReportedAt() time.Time {
	return time.UnixMilli(r.ReportedAtTimestamp)
}

// Filter narrows a fetch by category and/or status. Zero value fetches all.
type Filter struct {
	Category string
	Status   string
}

// Source supplies the full current set of reports.
type Source interface {
	GetAllReports(ctx context.Context, f Filter) ([]Report, error)
}
