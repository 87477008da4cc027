package perfume

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractListCleaned(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"blank", "  ", []string{}},
		{"simple", "Bergamot, Lemon", []string{"Bergamot", "Lemon"}},
		{"empty pieces dropped", "Rose,, ,Musk,", []string{"Rose", "Musk"}},
		{"cleaned then deduped", "Rose, Rose Absolute, Rose™, Jasmine", []string{"Rose", "Jasmine"}},
		{"pieces cleaning to empty dropped", "Absolute, (CO2), Iris", []string{"Iris"}},
		{"order preserved", "Vetiver, Amber, Vetiver, Cedar", []string{"Vetiver", "Amber", "Cedar"}},
		{"case sensitive dedup", "rose, Rose", []string{"rose", "Rose"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractListCleaned(tc.in), tc.name)
	}
}

func TestGetAllNotes_PyramidOrder(t *testing.T) {
	t.Parallel()

	r := RawRecord{TopNotes: "Bergamot, Lemon", MiddleNotes: "Rose", BaseNotes: "Musk"}
	assert.Equal(t, []string{"Bergamot", "Lemon", "Rose", "Musk"}, GetAllNotes(r))
}

func TestGetAllNotes_CrossLayerDuplicatesKept(t *testing.T) {
	t.Parallel()

	r := RawRecord{TopNotes: "Rose", MiddleNotes: "Rose, Jasmine", BaseNotes: "Musk, Musk"}
	assert.Equal(t, []string{"Rose", "Rose", "Jasmine", "Musk"}, GetAllNotes(r))
}

func TestGetAllNotes_AccordFallback(t *testing.T) {
	t.Parallel()

	r := RawRecord{MainAccords: "Citrus, Woody"}
	assert.Equal(t, []string{"Citrus", "Woody"}, GetAllNotes(r))
}

func TestGetAllNotes_FallbackDoesNotDedupe(t *testing.T) {
	t.Parallel()

	r := RawRecord{TopNotes: "Absolute", MainAccords: "Woody, woody, Woody, , Amber™"}
	assert.Equal(t, []string{"Woody", "woody", "Woody", "Amber"}, GetAllNotes(r))
}

func TestGetAllNotes_NothingAvailable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{}, GetAllNotes(RawRecord{}))
}
