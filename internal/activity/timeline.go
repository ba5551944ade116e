package activity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeline limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
	ExportLimit     = 500
)

// TimelineFilters narrows the activity timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Search   string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// Entry is one activity_logs row with its actor resolved.
type Entry struct {
	ID         int64
	At         time.Time
	ActorID    int64
	ActorName  string
	ActorEmail string
	Action     string
	Entity     string
	EntityID   string
	ShopID     int64
	Details    map[string]any
}

// Actor names who performed the action, "Système" for scheduled jobs.
func (e Entry) Actor() string {
	switch {
	case e.ActorName != "":
		return e.ActorName
	case e.ActorEmail != "":
		return e.ActorEmail
	}
	return "Système"
}

// DetailsText flattens details as "key=value" pairs in key order.
func (e Entry) DetailsText() string {
	if len(e.Details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}
	return strings.Join(parts, ", ")
}

// PagingInfo holds window pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps a timeline page.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// ViewModel feeds the timeline template.
type ViewModel struct {
	Filters  TimelineFilters
	Rows     []Entry
	Paging   PagingInfo
	Entities []string
	Errors   map[string]string
}

// Entities lists the entity names written by the console.
func Entities() []string {
	return []string{"contract", "invoice", "payment", "profile", "shop", "tenant", "billing"}
}
