// Package csvsource reads the delimited fragrance catalog export into raw
// records, from a local path or an s3:// object.
package csvsource

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// Column headers of the catalog export.
const (
	ColBrand         = "Brand"
	ColName          = "Name"
	ColConcentration = "Concentration"
	ColManufacturer  = "Manufacturer"
	ColReleaseYear   = "Release Year"
	ColGender        = "Gender"
	ColRatingCount   = "Rating Count"
	ColRatingValue   = "Rating Value"
	ColTopNotes      = "Top Notes"
	ColMiddleNotes   = "Middle Notes"
	ColBaseNotes     = "Base Notes"
	ColMainAccords   = "Main Accords"
	ColPerfumers     = "Perfumers"
	ColURL           = "URL"
	ColImageURL      = "Image URL"
	ColIsUncertain   = "Is Uncertain"
	ColIsLinear      = "Is Linear"
)

// RequiredColumns must be present in the header.
var RequiredColumns = []string{ColBrand, ColName, ColConcentration, ColReleaseYear, ColRatingCount}

// ObjectOpener opens s3:// locations.
type ObjectOpener interface {
	OpenURL(ctx context.Context, u string) (io.ReadCloser, error)
}

// Options controls parsing.
type Options struct {
	Delimiter    rune
	DecimalComma bool
	// FillUnknown replaces empty brand, name, concentration and
	// manufacturer cells with "Unknown".
	FillUnknown bool
}

// DefaultOptions matches the catalog export: semicolons, decimal commas,
// unknown-filling on.
func DefaultOptions() Options {
	return Options{Delimiter: ';', DecimalComma: true, FillUnknown: true}
}

// Reader decodes catalog files.
type Reader struct {
	opts    Options
	objects ObjectOpener
	logger  logging.Logger
}

// New creates a Reader.  objects may be nil when only local paths are read.
func New(opts Options, objects ObjectOpener, logger logging.Logger) *Reader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ';'
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Reader{opts: opts, objects: objects, logger: logger.Named("csvsource")}
}

// Read opens location and decodes it.
func (r *Reader) Read(ctx context.Context, location string) ([]perfume.RawRecord, error) {
	rc, err := r.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	recs, err := r.Decode(ctx, rc)
	if err != nil {
		return nil, err
	}
	r.logger.Info("catalog loaded", logging.String("source", location), logging.Int("records", len(recs)))
	return recs, nil
}

func (r *Reader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, errors.New(errors.ErrCodeSourceLocation, "no catalog location given")
	}
	if strings.HasPrefix(location, "s3://") {
		if r.objects == nil {
			return nil, errors.Newf(errors.ErrCodeFeatureDisabled, "object storage is not configured for %s", location)
		}
		return r.objects.OpenURL(ctx, location)
	}
	f, err := os.Open(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrCodeNotFound, "catalog file not found").WithDetail(location)
		}
		return nil, errors.Wrap(err, errors.ErrCodeSourceRead, "open catalog").WithDetail(location)
	}
	return f, nil
}

// Decode parses a catalog stream.  Rows whose field count differs from the
// header are skipped with a warning.
func (r *Reader) Decode(ctx context.Context, in io.Reader) ([]perfume.RawRecord, error) {
	cr := csv.NewReader(bufio.NewReader(in))
	cr.Comma = r.opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeSourceEmpty, "catalog is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceRead, "read catalog header")
	}
	cols := indexHeader(header)
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, errors.Newf(errors.ErrCodeSourceHeader, "missing column %q", c)
		}
	}

	var (
		out     []perfume.RawRecord
		skipped int
		width   = len(header)
	)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeSourceRead, "read catalog line %d", line)
		}
		if len(row) != width {
			skipped++
			r.logger.Warn("malformed row skipped", logging.Int("line", line), logging.Int("fields", len(row)), logging.Int("expected", width))
			continue
		}
		if len(out)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec := r.record(cols, row)
		rec.Position = len(out)
		out = append(out, rec)
	}
	if skipped > 0 {
		r.logger.Warn("catalog rows skipped", logging.Int("skipped", skipped))
	}
	return out, nil
}

type columns map[string]int

func indexHeader(header []string) columns {
	cols := make(columns, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[strings.TrimSpace(h)] = i
	}
	return cols
}

func (c columns) get(row []string, name string) string {
	if i, ok := c[name]; ok {
		return row[i]
	}
	return ""
}

func (r *Reader) record(cols columns, row []string) perfume.RawRecord {
	text := func(name string) string {
		v := cols.get(row, name)
		if r.opts.FillUnknown && v == "" {
			return perfume.UnknownValue
		}
		return v
	}
	return perfume.RawRecord{
		Brand:         text(ColBrand),
		Name:          text(ColName),
		Concentration: text(ColConcentration),
		Manufacturer:  text(ColManufacturer),
		ReleaseYear:   r.integer(cols.get(row, ColReleaseYear)),
		Gender:        cols.get(row, ColGender),
		RatingCount:   r.integer(cols.get(row, ColRatingCount)),
		RatingValue:   r.number(cols.get(row, ColRatingValue)),
		TopNotes:      cols.get(row, ColTopNotes),
		MiddleNotes:   cols.get(row, ColMiddleNotes),
		BaseNotes:     cols.get(row, ColBaseNotes),
		MainAccords:   cols.get(row, ColMainAccords),
		Perfumers:     cols.get(row, ColPerfumers),
		URL:           cols.get(row, ColURL),
		ImageURL:      cols.get(row, ColImageURL),
		IsUncertain:   flag(cols.get(row, ColIsUncertain)),
		IsLinear:      flag(cols.get(row, ColIsLinear)),
	}
}

// number parses a decimal cell; anything unparseable is 0.
func (r *Reader) number(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if r.opts.DecimalComma {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// integer truncates number toward zero.
func (r *Reader) integer(s string) int {
	f := r.number(s)
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}

func flag(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
