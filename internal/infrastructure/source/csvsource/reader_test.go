package csvsource

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/testutil"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

func TestRead_LocalFile(t *testing.T) {
	log := testutil.NewMockLogger()
	r := New(DefaultOptions(), nil, log)

	recs, err := r.Read(context.Background(), filepath.Join("testdata", "catalog.csv"))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	no5 := recs[0]
	assert.Equal(t, 0, no5.Position)
	assert.Equal(t, "Chanel", no5.Brand, "header names are trimmed")
	assert.Equal(t, 1921, no5.ReleaseYear)
	assert.Equal(t, 12000, no5.RatingCount)
	assert.InDelta(t, 4.21, no5.RatingValue, 1e-9)
	assert.Equal(t, "Rose, Jasmine Absolute", no5.MiddleNotes)
	assert.False(t, no5.IsUncertain)
	assert.True(t, no5.IsLinear)

	sauvage := recs[1]
	assert.Equal(t, perfume.UnknownValue, sauvage.Manufacturer)
	assert.Equal(t, 2015, sauvage.ReleaseYear, "float-looking years are accepted")
	assert.Equal(t, 0, sauvage.RatingCount, "unparseable counts coerce to 0")
	assert.Equal(t, 0.0, sauvage.RatingValue)
	assert.True(t, sauvage.IsUncertain)
	assert.Equal(t, "François Demachy", sauvage.Perfumers)

	blank := recs[2]
	assert.Equal(t, perfume.UnknownValue, blank.Brand)
	assert.Equal(t, perfume.UnknownValue, blank.Name)
	assert.Equal(t, perfume.UnknownValue, blank.Concentration)
	assert.Equal(t, "", blank.Gender)
	assert.Equal(t, 2, blank.Position)

	assert.True(t, log.HasMessage("warn", "malformed row skipped"))
}

func TestDecode_WithoutFillUnknown(t *testing.T) {
	in := "Brand;Name;Concentration;Release Year;Rating Count\n;X;;0;5\n"
	recs, err := New(Options{Delimiter: ';'}, nil, nil).Decode(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].Brand)
	assert.Equal(t, "", recs[0].Manufacturer)
}

func TestDecode_DotDecimalAndComma(t *testing.T) {
	in := "\ufeffBrand,Name,Concentration,Release Year,Rating Count,Rating Value\nA,B,C,1999.0,42,3.5\n"
	recs, err := New(Options{Delimiter: ','}, nil, nil).Decode(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A", recs[0].Brand, "BOM is stripped from the first header")
	assert.Equal(t, 1999, recs[0].ReleaseYear)
	assert.InDelta(t, 3.5, recs[0].RatingValue, 1e-9)
}

func TestDecode_HeaderErrors(t *testing.T) {
	r := New(DefaultOptions(), nil, nil)

	_, err := r.Decode(context.Background(), strings.NewReader(""))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSourceEmpty))

	_, err = r.Decode(context.Background(), strings.NewReader("Brand;Name\nA;B\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSourceHeader))
	assert.Contains(t, err.Error(), "Concentration")
}

func TestRead_LocationErrors(t *testing.T) {
	r := New(DefaultOptions(), nil, nil)

	_, err := r.Read(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeSourceLocation))

	_, err = r.Read(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errors.IsNotFound(err))

	_, err = r.Read(context.Background(), "s3://bucket/catalog.csv")
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
}

type fakeObjects map[string]string

func (f fakeObjects) OpenURL(_ context.Context, u string) (io.ReadCloser, error) {
	body, ok := f[u]
	if !ok {
		return nil, fmt.Errorf("no object %s", u)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestRead_ObjectURL(t *testing.T) {
	objects := fakeObjects{"s3://catalogs/latest.csv": "Brand;Name;Concentration;Release Year;Rating Count\nGuerlain;Shalimar;EDP;1925;8000\n"}
	recs, err := New(DefaultOptions(), objects, nil).Read(context.Background(), "s3://catalogs/latest.csv")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Shalimar", recs[0].Name)
	assert.Equal(t, 8000, recs[0].RatingCount)

	_, err = New(DefaultOptions(), objects, nil).Read(context.Background(), "s3://catalogs/other.csv")
	assert.Error(t, err)
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := "Brand;Name;Concentration;Release Year;Rating Count\nA;B;C;1;1\n"
	_, err := New(DefaultOptions(), nil, nil).Decode(ctx, strings.NewReader(in))
	assert.ErrorIs(t, err, context.Canceled)
}
