package models

import "time"

// ViewInfo describes a stored view.
type ViewInfo struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Index   string   `json:"index,omitempty"`
}

// UsageBucket is the number of requests that fall into one bucket of a
// calendar dimension (an hour, a weekday, a month).
type UsageBucket struct {
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// UsageResponse is the distribution of a view over one dimension.
type UsageResponse struct {
	View      string        `json:"view"`
	Dimension string        `json:"dimension"`
	Total     int64         `json:"total"`
	Buckets   []UsageBucket `json:"buckets"`
}

// PathCount is a path segment value and the number of requests hitting it.
type PathCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
	Users int    `json:"users"`
}

// TopPathsResponse lists the most requested values of a path segment.
type TopPathsResponse struct {
	View    string      `json:"view"`
	Segment int         `json:"segment"`
	Paths   []PathCount `json:"paths"`
}

// ViewSummary is a high level description of a processed view.
type ViewSummary struct {
	View          string     `json:"view"`
	Rows          int        `json:"rows"`
	FirstSeen     *time.Time `json:"first_seen,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	DistinctUsers int        `json:"distinct_users"`
	NullPaths     int        `json:"null_paths"`
	Cohorts       int        `json:"cohorts"`
}
