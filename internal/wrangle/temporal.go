package wrangle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

var errNullValue = errors.New("value is null")

// timeParser parses date/time text against a fixed layout list. All
// results are in UTC.
type timeParser struct {
	cfg  *now.Config
	base time.Time
}

func newTimeParser(layouts []string) *timeParser {
	return &timeParser{
		cfg: &now.Config{
			WeekStartDay: time.Monday,
			TimeLocation: time.UTC,
			TimeFormats:  layouts,
		},
		// A fixed base keeps parsing independent of the wall clock.
		base: time.Unix(0, 0).UTC(),
	}
}

func (p *timeParser) parse(s string) (time.Time, error) {
	return p.cfg.With(p.base).Parse(strings.TrimSpace(s))
}

// NormalizeTimes adds the timestamp index to both tables, parses the date
// columns in place and sorts each table by timestamp. The tables are
// processed independently; the raw table is processed first and the first
// failure is returned.
func NormalizeTimes(raw, variant *frame.Table, cfg Config) (*frame.Table, *frame.Table, error) {
	p := newTimeParser(cfg.TimeLayouts)

	rawOut, err := normalizeTable(models.ViewRaw, raw, p, cfg)
	if err != nil {
		return nil, nil, err
	}
	variantOut, err := normalizeTable(models.ViewVariant, variant, p, cfg)
	if err != nil {
		return nil, nil, err
	}
	return rawOut, variantOut, nil
}

func normalizeTable(name string, t *frame.Table, p *timeParser, cfg Config) (*frame.Table, error) {
	required := append([]string{models.ColDate, models.ColTime}, cfg.DateColumns...)
	if err := models.CheckColumns(t, "temporal normalizer", required...); err != nil {
		return nil, err
	}

	ts, err := timestampColumn(name, t, p)
	if err != nil {
		return nil, err
	}
	out, err := t.WithColumn(ts)
	if err != nil {
		return nil, fmt.Errorf("adding %s: %w", models.ColTimestamp, err)
	}

	for _, col := range cfg.DateColumns {
		parsed, err := parseColumn(name, out, col, p)
		if err != nil {
			return nil, err
		}
		if out, err = out.WithColumn(parsed); err != nil {
			return nil, fmt.Errorf("replacing %s: %w", col, err)
		}
	}

	return out.SetIndex(models.ColTimestamp)
}

// timestampColumn joins date and time with a single space and parses the
// result. Both parts must be present.
func timestampColumn(name string, t *frame.Table, p *timeParser) (frame.Column, error) {
	values := make([]frame.Value, t.Len())
	for row := range values {
		date, dok := t.Value(row, models.ColDate).Str()
		clock, tok := t.Value(row, models.ColTime).Str()
		if !dok || !tok {
			return frame.Column{}, &models.ParseError{
				Table:  name,
				Column: models.ColTimestamp,
				RowID:  t.RowID(row),
				Value:  date + " " + clock,
				Err:    errNullValue,
			}
		}

		text := date + " " + clock
		parsed, err := p.parse(text)
		if err != nil {
			return frame.Column{}, &models.ParseError{
				Table:  name,
				Column: models.ColTimestamp,
				RowID:  t.RowID(row),
				Value:  text,
				Err:    err,
			}
		}
		values[row] = frame.Time(parsed)
	}
	return frame.Column{Name: models.ColTimestamp, Kind: frame.KindTime, Values: values}, nil
}

// parseColumn converts a text column into a time column. Nulls stay null;
// columns that already hold times are returned unchanged.
func parseColumn(name string, t *frame.Table, col string, p *timeParser) (frame.Column, error) {
	src, _ := t.Column(col)
	switch src.Kind {
	case frame.KindTime:
		return src, nil
	case frame.KindString:
	default:
		return frame.Column{}, &models.SchemaError{Column: col, Op: "temporal normalizer", Detail: "expected text values, got " + src.Kind.String()}
	}

	values := make([]frame.Value, len(src.Values))
	for row, v := range src.Values {
		text, ok := v.Str()
		if !ok {
			values[row] = frame.Null(frame.KindTime)
			continue
		}
		parsed, err := p.parse(text)
		if err != nil {
			return frame.Column{}, &models.ParseError{
				Table:  name,
				Column: col,
				RowID:  t.RowID(row),
				Value:  text,
				Err:    err,
			}
		}
		values[row] = frame.Time(parsed)
	}
	return frame.Column{Name: col, Kind: frame.KindTime, Values: values}, nil
}
