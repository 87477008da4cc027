package perfume

import (
	"context"
	"strconv"
)

// LookupTable names an auxiliary table resolved by lookup-or-create.
type LookupTable string

const (
	TableBrands         LookupTable = "brands"
	TableConcentrations LookupTable = "concentrations"
	TableManufacturers  LookupTable = "manufacturers"
)

// HasSlug reports whether rows of the table carry a slug column.
func (t LookupTable) HasSlug() bool {
	return t == TableBrands || t == TableConcentrations
}

// LookupTables lists every table the loader resolves, in resolution order.
var LookupTables = []LookupTable{TableBrands, TableConcentrations, TableManufacturers}

// LookupRepository is the store behind lookup-or-create.
type LookupRepository interface {
	// FindID returns the ID of the row whose name equals value.
	FindID(ctx context.Context, table LookupTable, value string) (id string, found bool, err error)

	// Create inserts a row and returns its ID.  A unique-constraint
	// violation is reported with errors.ErrCodeConflict so callers can
	// re-read the row written by a concurrent writer.
	Create(ctx context.Context, table LookupTable, value, slug string) (string, error)

	// ListAll returns every row of the table as name → ID.
	ListAll(ctx context.Context, table LookupTable) (map[string]string, error)
}

// PerfumeRow is the store shape of a scored perfume.  Nullable columns are
// pointers.
type PerfumeRow struct {
	FingerprintStrict string
	FingerprintLoose  string
	Name              string
	BrandID           string
	ConcentrationID   *string
	ManufacturerID    *string
	ReleaseYear       *int
	Gender            *string
	TopNotes          []string
	MiddleNotes       []string
	BaseNotes         []string
	Perfumers         []string
	Score             *float64
	ModelVersion      int
	IsActive          bool
	IsUncertain       bool
	IsLinear          bool
	SourceRecordSlug  string
}

// ConflictKey is the upsert uniqueness tuple (brand, name, concentration,
// release year) rendered as a map key.  Absent parts render as "∅".
func (r PerfumeRow) ConflictKey() string {
	conc, year := "∅", "∅"
	if r.ConcentrationID != nil {
		conc = *r.ConcentrationID
	}
	if r.ReleaseYear != nil {
		year = strconv.Itoa(*r.ReleaseYear)
	}
	return r.BrandID + "|" + r.Name + "|" + conc + "|" + year
}

// PerfumeWriter persists perfume rows.
type PerfumeWriter interface {
	// UpsertBatch writes rows in one statement keyed by ConflictKey and
	// returns the number of affected rows.
	UpsertBatch(ctx context.Context, rows []PerfumeRow) (int64, error)
}
