// Package notify builds local notifications for new nearby reports and
// delivers them through one or more sinks.
//
// Sinks: structured log (always available), HTTP webhook, NATS subject and
// Kafka topic. Multi fans a notification out to every configured sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/report"
)

// DefaultTitle prefixes every new-report notification.
const DefaultTitle = "🚨 Nuevo reporte cerca de ti"

// ErrPermissionDenied is returned when notification permission is refused.
var ErrPermissionDenied = errors.New("notification permission denied")

// Notification is an immediate local notification.
type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sink presents a notification to the user.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Permissions acquires the right to show notifications.
type Permissions interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// Static is a fixed permission answer, for platforms without a prompt.
type Static bool

func (s Static) RequestPermission(context.Context) (bool, error) {
	return bool(s), nil
}

// ForReport builds the notification for a report distanceKm away. An empty
// title falls back to DefaultTitle.
func ForReport(r report.Report, distanceKm float64, title string) Notification {
	if title == "" {
		title = DefaultTitle
	}
	id := uuid.NewString()
	return Notification{
		ID:    id,
		Title: fmt.Sprintf("%s: %s", title, r.Category),
		Body:  fmt.Sprintf("%s: %s (%s)", r.Category, r.Title, geo.FormatDistance(distanceKm)),
		Data: map[string]string{
			"reportId":       string(r.ID),
			"category":       r.Category,
			"distance_km":    strconv.FormatFloat(distanceKm, 'f', 3, 64),
			"notificationId": id,
		},
		CreatedAt: time.Now().UTC(),
	}
}
