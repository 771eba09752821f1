package wrangle

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

type record struct {
	date     string
	time     string
	path     *string
	noCohort bool
}

func p(s string) *string { return &s }

// rawTable builds a raw log table with the full column set.
func rawTable(t *testing.T, recs []record) *frame.Table {
	t.Helper()

	cols := make(map[string][]frame.Value, len(models.LogRecordColumns))
	str := func(s string) frame.Value { return frame.String(s) }
	null := frame.Null(frame.KindString)

	for i, r := range recs {
		cohort := func(v string) frame.Value {
			if r.noCohort {
				return null
			}
			return str(v)
		}
		path := null
		if r.path != nil {
			path = str(*r.path)
		}

		add := func(name string, v frame.Value) { cols[name] = append(cols[name], v) }
		add(models.ColRowIndex, str(strconv.Itoa(i)))
		add(models.ColDate, str(r.date))
		add(models.ColTime, str(r.time))
		add(models.ColPath, path)
		add(models.ColUserID, str(strconv.Itoa(i%3+1)))
		add(models.ColCohortID, cohort("22"))
		add(models.ColIP, str("97.105.19.61"))
		add(models.ColID, cohort("22"))
		add(models.ColName, cohort("Hampton"))
		add(models.ColSlack, cohort("#hampton"))
		add(models.ColStartDate, cohort("2015-09-22"))
		add(models.ColEndDate, cohort("2016-02-06"))
		add(models.ColCreatedAt, cohort("2016-06-14 19:52:26"))
		add(models.ColUpdatedAt, cohort("2016-06-14 19:52:26"))
		add(models.ColDeletedAt, null)
		add(models.ColProgramID, cohort("1"))
	}

	columns := make([]frame.Column, 0, len(models.LogRecordColumns))
	for _, name := range models.LogRecordColumns {
		columns = append(columns, frame.NewColumn(name, frame.KindString, cols[name]))
	}
	tbl, err := frame.New(columns...)
	require.NoError(t, err)
	return tbl
}

func sampleRecords() []record {
	return []record{
		{date: "2022-01-03", time: "09:15:00", path: p("search/search_index.json")},
		{date: "2022-01-02", time: "23:00:00", path: p("courses/python/intro.jpg")},
		{date: "2022-01-03", time: "08:00:00", path: nil},
		{date: "2022-01-03", time: "09:15:00", path: p("java-iii/servlets")},
		{date: "2022-01-01", time: "12:30:00", path: p("/")},
		{date: "2022-01-04", time: "00:00:01", path: p("img/logo.svg")},
		{date: "2022-01-04", time: "13:45:10", path: p("a/b/c/d/e/f/g/h/i/j"), noCohort: true},
		{date: "2022-02-14", time: "17:05:00", path: p("photo.jpeg")},
		{date: "2022-01-03", time: "09:15:00", path: p("")},
	}
}

// findRow returns the position of the row with the given row id.
func findRow(t *testing.T, tbl *frame.Table, id int) int {
	t.Helper()
	for i, rid := range tbl.RowIDs() {
		if rid == id {
			return i
		}
	}
	return -1
}

func text(t *testing.T, tbl *frame.Table, row int, col string) *string {
	t.Helper()
	require.True(t, tbl.Has(col), "missing column %s", col)
	v, ok := tbl.Value(row, col).Str()
	if !ok {
		return nil
	}
	return &v
}

func TestIsNoise(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		path string
		want bool
	}{
		{"courses/python/intro.jpg", true},
		{"photo.jpeg", true},
		{"img/logo.svg", true},
		{"/", true},
		{"search/search_index.json", true},
		{"image.JPG", false},
		{"jpg/index.html", false},
		{"//", false},
		{"search/search_index.json/", false},
		{"java-iii/servlets", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.IsNoise(tt.path))
		})
	}
}

func TestFilterPaths(t *testing.T) {
	raw := rawTable(t, sampleRecords())

	variant, err := FilterPaths(raw, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 6, 8}, variant.RowIDs())
	assert.Equal(t, 9, raw.Len(), "raw table must not change")
	assert.Equal(t, raw.Columns(), variant.Columns())
}

func TestFilterPathsMissingColumn(t *testing.T) {
	raw := rawTable(t, sampleRecords()).Drop(models.ColPath)

	_, err := FilterPaths(raw, DefaultConfig())

	var schemaErr *models.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, models.ColPath, schemaErr.Column)
}

func TestWrangleScenarios(t *testing.T) {
	raw, variant, err := Wrangle(rawTable(t, sampleRecords()))
	require.NoError(t, err)

	t.Run("search index row is raw only", func(t *testing.T) {
		assert.Equal(t, -1, findRow(t, variant, 0))
		row := findRow(t, raw, 0)
		require.GreaterOrEqual(t, row, 0)

		assert.Equal(t, time.Date(2022, 1, 3, 9, 15, 0, 0, time.UTC), raw.IndexAt(row))
		hour, ok := raw.Value(row, models.ColHour).Int64()
		require.True(t, ok)
		assert.Equal(t, int64(9), hour)
		assert.Equal(t, "Monday", *text(t, raw, row, models.ColWeekday))
		assert.Equal(t, "January", *text(t, raw, row, models.ColMonth))
	})

	t.Run("image row segments", func(t *testing.T) {
		assert.Equal(t, -1, findRow(t, variant, 1))
		row := findRow(t, raw, 1)
		require.GreaterOrEqual(t, row, 0)

		assert.Equal(t, "courses", *text(t, raw, row, "path_1"))
		assert.Equal(t, "python", *text(t, raw, row, "path_2"))
		assert.Equal(t, "intro.jpg", *text(t, raw, row, "path_3"))
		for i := 4; i <= 8; i++ {
			assert.Nil(t, text(t, raw, row, "path_"+strconv.Itoa(i)))
		}
	})

	t.Run("null path kept with null segments", func(t *testing.T) {
		for _, tbl := range []*frame.Table{raw, variant} {
			row := findRow(t, tbl, 2)
			require.GreaterOrEqual(t, row, 0)
			for i := 1; i <= 8; i++ {
				assert.Nil(t, text(t, tbl, row, "path_"+strconv.Itoa(i)))
			}
		}
		assert.Nil(t, text(t, variant, findRow(t, variant, 2), models.ColPath))
	})

	t.Run("long path truncated", func(t *testing.T) {
		row := findRow(t, raw, 6)
		assert.Equal(t, "h", *text(t, raw, row, "path_8"))
	})

	t.Run("empty path is one empty segment", func(t *testing.T) {
		row := findRow(t, variant, 8)
		require.GreaterOrEqual(t, row, 0)
		assert.Equal(t, "", *text(t, variant, row, "path_1"))
		assert.Nil(t, text(t, variant, row, "path_2"))
	})

	t.Run("variant segments match raw segments", func(t *testing.T) {
		for vrow, id := range variant.RowIDs() {
			rrow := findRow(t, raw, id)
			for i := 1; i <= 8; i++ {
				col := "path_" + strconv.Itoa(i)
				assert.True(t, raw.Value(rrow, col).Equal(variant.Value(vrow, col)), "row %d %s", id, col)
			}
		}
	})

	t.Run("missing cohort keeps null dates", func(t *testing.T) {
		row := findRow(t, raw, 6)
		assert.True(t, raw.Value(row, models.ColStartDate).IsNull())
		assert.Equal(t, frame.KindTime, raw.Value(row, models.ColStartDate).Kind())

		row = findRow(t, raw, 3)
		start, ok := raw.Value(row, models.ColStartDate).TimeValue()
		require.True(t, ok)
		assert.Equal(t, time.Date(2015, 9, 22, 0, 0, 0, 0, time.UTC), start)
	})
}

func TestWrangleProperties(t *testing.T) {
	input := rawTable(t, sampleRecords())
	cfg := DefaultConfig()

	raw, variant, err := Wrangle(input)
	require.NoError(t, err)

	t.Run("row count conservation", func(t *testing.T) {
		assert.Equal(t, input.Len(), raw.Len())
	})

	t.Run("filter correctness", func(t *testing.T) {
		kept := make(map[int]bool)
		for row, id := range variant.RowIDs() {
			kept[id] = true
			if path := text(t, variant, row, models.ColPath); path != nil {
				assert.False(t, cfg.IsNoise(*path), "noise path %q in variant", *path)
			}
		}
		for row := 0; row < input.Len(); row++ {
			if kept[input.RowID(row)] {
				continue
			}
			path, ok := input.Value(row, models.ColPath).Str()
			require.True(t, ok, "null path rows must be kept")
			assert.True(t, cfg.IsNoise(path))
		}
	})

	t.Run("ordering", func(t *testing.T) {
		for _, tbl := range []*frame.Table{raw, variant} {
			idx := tbl.Index()
			for i := 1; i < len(idx); i++ {
				assert.False(t, idx[i].Before(idx[i-1]))
			}
		}
		// rows 0, 3 and 8 share a timestamp and keep source order
		var tied []int
		for _, id := range raw.RowIDs() {
			if id == 0 || id == 3 || id == 8 {
				tied = append(tied, id)
			}
		}
		assert.Equal(t, []int{0, 3, 8}, tied)
	})

	t.Run("column presence", func(t *testing.T) {
		segments := cfg.SegmentColumns()
		want := []string{
			models.ColDate, models.ColTime, models.ColUserID, models.ColCohortID, models.ColIP,
			models.ColName, models.ColSlack, models.ColStartDate, models.ColEndDate,
			models.ColCreatedAt, models.ColUpdatedAt, models.ColProgramID,
			models.ColHour, models.ColWeekday, models.ColMonth,
		}
		assert.Equal(t, append(append([]string{}, want...), segments...), raw.Columns())

		for _, gone := range []string{models.ColPath, models.ColID, models.ColDeletedAt, models.ColRowIndex, models.ColTimestamp} {
			assert.False(t, raw.Has(gone), "raw has %s", gone)
		}
		for _, gone := range []string{models.ColID, models.ColDeletedAt, models.ColRowIndex} {
			assert.False(t, variant.Has(gone), "variant has %s", gone)
		}
		assert.True(t, variant.Has(models.ColPath))
		for _, col := range append([]string{models.ColHour, models.ColWeekday, models.ColMonth}, segments...) {
			assert.True(t, raw.Has(col))
			assert.True(t, variant.Has(col))
		}
		assert.Equal(t, models.ColTimestamp, raw.IndexName())
		assert.Equal(t, models.ColTimestamp, variant.IndexName())
	})

	t.Run("idempotence", func(t *testing.T) {
		raw2, variant2, err := Wrangle(rawTable(t, sampleRecords()))
		require.NoError(t, err)
		assert.True(t, raw.Equal(raw2))
		assert.True(t, variant.Equal(variant2))

		raw3, variant3, err := Wrangle(input)
		require.NoError(t, err)
		assert.True(t, raw.Equal(raw3), "input must be reusable")
		assert.True(t, variant.Equal(variant3))
	})
}

func TestWrangleParseError(t *testing.T) {
	tests := []struct {
		name   string
		recs   []record
		column string
		rowID  int
	}{
		{
			name: "malformed date",
			recs: []record{
				{date: "2022-01-03", time: "09:15:00", path: p("a")},
				{date: "2022-13-45", time: "09:15:00", path: p("b")},
			},
			column: models.ColTimestamp,
			rowID:  1,
		},
		{
			name: "malformed time on filtered row",
			recs: []record{
				{date: "2022-01-03", time: "nine", path: p("x.jpg")},
			},
			column: models.ColTimestamp,
			rowID:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Wrangle(rawTable(t, tt.recs))

			var parseErr *models.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.column, parseErr.Column)
			assert.Equal(t, tt.rowID, parseErr.RowID)
			assert.Equal(t, models.ViewRaw, parseErr.Table)
		})
	}
}

func TestWrangleParseErrorInDateColumn(t *testing.T) {
	raw := rawTable(t, []record{{date: "2022-01-03", time: "09:15:00", path: p("a")}})
	bad, err := raw.WithColumn(frame.NewColumn(models.ColEndDate, frame.KindString, []frame.Value{frame.String("soon")}))
	require.NoError(t, err)

	_, _, err = Wrangle(bad)

	var parseErr *models.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, models.ColEndDate, parseErr.Column)
	assert.Equal(t, "soon", parseErr.Value)
}

func TestWrangleSchemaError(t *testing.T) {
	for _, col := range []string{models.ColPath, models.ColDate, models.ColTime, models.ColCreatedAt} {
		t.Run(col, func(t *testing.T) {
			_, _, err := Wrangle(rawTable(t, sampleRecords()).Drop(col))

			var schemaErr *models.SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, col, schemaErr.Column)
		})
	}
}

func TestStrictSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrictSegments = true
	pipeline, err := NewPipeline(cfg, nil)
	require.NoError(t, err)

	_, err = pipeline.Run(rawTable(t, sampleRecords()))

	var schemaErr *models.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, models.ColPath, schemaErr.Column)
	assert.Contains(t, err.Error(), "10 segments")
}

func TestDuplicateTimestampsDoNotMultiplyRows(t *testing.T) {
	recs := []record{
		{date: "2022-01-03", time: "09:15:00", path: p("a/b")},
		{date: "2022-01-03", time: "09:15:00", path: p("c/d")},
		{date: "2022-01-03", time: "09:15:00", path: p("e.svg")},
	}

	raw, variant, err := Wrangle(rawTable(t, recs))
	require.NoError(t, err)

	assert.Equal(t, 3, raw.Len())
	assert.Equal(t, 2, variant.Len())
	assert.Equal(t, "c", *text(t, variant, 1, "path_1"))
}

func TestPipelineStats(t *testing.T) {
	pipeline, err := NewPipeline(DefaultConfig(), nil)
	require.NoError(t, err)

	res, err := pipeline.Run(rawTable(t, sampleRecords()))
	require.NoError(t, err)

	assert.Equal(t, 9, res.Stats.InputRows)
	assert.Equal(t, 9, res.Stats.RawRows)
	assert.Equal(t, 4, res.Stats.VariantRows)
	assert.Equal(t, 5, res.Stats.FilteredRows)
	assert.Len(t, res.Stats.Stages, 3)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.PathSegments = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TimeLayouts = nil
	_, err := NewPipeline(cfg, nil)
	assert.Error(t, err)

	_, _, err = Wrangle(nil)
	assert.Error(t, err)
}
