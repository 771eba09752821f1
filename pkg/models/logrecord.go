package models

import (
	"strconv"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
)

// Column names of a curriculum log record: the logs table joined with the
// cohorts table, plus the row index written by the snapshot cache.
const (
	ColRowIndex  = "row_index"
	ColDate      = "date"
	ColTime      = "time"
	ColPath      = "path"
	ColUserID    = "user_id"
	ColCohortID  = "cohort_id"
	ColIP        = "ip"
	ColID        = "id"
	ColName      = "name"
	ColSlack     = "slack"
	ColStartDate = "start_date"
	ColEndDate   = "end_date"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
	ColDeletedAt = "deleted_at"
	ColProgramID = "program_id"
)

// Columns derived by the pipeline.
const (
	ColTimestamp = "timestamp"
	ColHour      = "hour"
	ColWeekday   = "weekday"
	ColMonth     = "month"
)

// SegmentColumn returns the name of the n-th path segment column, counting
// from 1.
func SegmentColumn(n int) string {
	return ColPath + "_" + strconv.Itoa(n)
}

// View names.
const (
	ViewRaw     = "raw"
	ViewVariant = "variant"
)

// LogRecordColumns lists the columns of a raw log record in source order.
var LogRecordColumns = []string{
	ColRowIndex,
	ColDate,
	ColTime,
	ColPath,
	ColUserID,
	ColCohortID,
	ColIP,
	ColID,
	ColName,
	ColSlack,
	ColStartDate,
	ColEndDate,
	ColCreatedAt,
	ColUpdatedAt,
	ColDeletedAt,
	ColProgramID,
}

// RequiredColumns are the columns the pipeline cannot proceed without.
var RequiredColumns = []string{
	ColDate,
	ColTime,
	ColPath,
	ColStartDate,
	ColEndDate,
	ColCreatedAt,
	ColUpdatedAt,
}

// CheckColumns returns a SchemaError for the first name missing from t.
func CheckColumns(t *frame.Table, op string, names ...string) error {
	for _, name := range names {
		if !t.Has(name) {
			return &SchemaError{Column: name, Op: op}
		}
	}
	return nil
}
