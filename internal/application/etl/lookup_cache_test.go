package etl

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/testutil"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

func TestLookupCache_SkipsEmptyAndUnknown(t *testing.T) {
	repo := newMemLookupRepo()
	c := NewLookupCache(repo, nil, nil)

	for _, v := range []string{"", "   ", "Unknown", "UNKNOWN"} {
		id, err := c.Resolve(context.Background(), perfume.TableBrands, v)
		require.NoError(t, err)
		assert.Empty(t, id, "value %q", v)
	}
	assert.Zero(t, repo.finds.Load())
	assert.Zero(t, repo.creates.Load())
}

func TestLookupCache_PrefetchServesNormalizedKeys(t *testing.T) {
	repo := newMemLookupRepo()
	repo.seed(perfume.TableBrands, "Chanel", "b-1")
	c := NewLookupCache(repo, nil, nil)

	require.NoError(t, c.Prefetch(context.Background()))
	assert.Equal(t, 1, c.Len(perfume.TableBrands))

	id, err := c.Resolve(context.Background(), perfume.TableBrands, "  CHANEL ")
	require.NoError(t, err)
	assert.Equal(t, "b-1", id)
	assert.Zero(t, repo.finds.Load())
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestLookupCache_PrefetchFailure(t *testing.T) {
	repo := newMemLookupRepo()
	repo.listErr = fmt.Errorf("relation does not exist")
	c := NewLookupCache(repo, nil, nil)

	err := c.Prefetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLookupFailed))
}

func TestLookupCache_CreatesWithSlugOnlyWhereTableHasOne(t *testing.T) {
	repo := newMemLookupRepo()
	c := NewLookupCache(repo, nil, nil)
	ctx := context.Background()

	brandID, err := c.Resolve(ctx, perfume.TableBrands, "Maison Francis Kurkdjian")
	require.NoError(t, err)
	manID, err := c.Resolve(ctx, perfume.TableManufacturers, "Puig S.A.")
	require.NoError(t, err)

	assert.Equal(t, "maison-francis-kurkdjian", repo.slugs[brandID])
	assert.Equal(t, "", repo.slugs[manID])
	assert.Equal(t, int64(2), c.Stats().Created)

	again, err := c.Resolve(ctx, perfume.TableBrands, "maison francis kurkdjian")
	require.NoError(t, err)
	assert.Equal(t, brandID, again)
	assert.Equal(t, int64(2), repo.creates.Load())
}

func TestLookupCache_ReReadsAfterInsertConflict(t *testing.T) {
	repo := newMemLookupRepo()
	repo.raceCreate["Dior"] = true
	log := testutil.NewMockLogger()
	c := NewLookupCache(repo, nil, log)

	id, err := c.Resolve(context.Background(), perfume.TableBrands, "Dior")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, log.HasMessage("warn", "lookup insert failed, re-reading"))
	assert.Equal(t, int64(1), c.Stats().Found)
}

func TestLookupCache_InsertFailureWithoutRow(t *testing.T) {
	repo := newMemLookupRepo()
	repo.failCreate["Ghost"] = true
	c := NewLookupCache(repo, nil, nil)

	id, err := c.Resolve(context.Background(), perfume.TableBrands, "Ghost")
	require.Error(t, err)
	assert.Empty(t, id)
	assert.True(t, errors.IsNotFound(err))
}

func TestLookupCache_FindFailure(t *testing.T) {
	repo := newMemLookupRepo()
	repo.failFind["Broken"] = true
	c := NewLookupCache(repo, nil, nil)

	_, err := c.Resolve(context.Background(), perfume.TableConcentrations, "Broken")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLookupFailed))
	assert.Zero(t, repo.creates.Load())
}

func TestLookupCache_ConcurrentResolveCreatesOnce(t *testing.T) {
	repo := newMemLookupRepo()
	c := NewLookupCache(repo, nil, nil)

	var wg sync.WaitGroup
	ids := make([]string, 64)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := c.Resolve(context.Background(), perfume.TableBrands, "Guerlain")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), repo.creates.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestLookupCache_SecondTier(t *testing.T) {
	repo := newMemLookupRepo()
	l2 := newMemLookupStore()
	require.NoError(t, l2.Set(context.Background(), perfume.TableBrands, "hermès", "b-42"))
	c := NewLookupCache(repo, l2, nil)

	id, err := c.Resolve(context.Background(), perfume.TableBrands, "Hermès")
	require.NoError(t, err)
	assert.Equal(t, "b-42", id)
	assert.Zero(t, repo.finds.Load())
	assert.Equal(t, int64(1), c.Stats().L2Hits)

	id, err = c.Resolve(context.Background(), perfume.TableBrands, "Lancôme")
	require.NoError(t, err)
	stored, ok, _ := l2.Get(context.Background(), perfume.TableBrands, "lancôme")
	assert.True(t, ok)
	assert.Equal(t, id, stored)
}

func TestLookupCache_SecondTierErrorsFallThrough(t *testing.T) {
	repo := newMemLookupRepo()
	repo.seed(perfume.TableBrands, "Creed", "b-7")
	l2 := newMemLookupStore()
	l2.err = fmt.Errorf("redis down")
	log := testutil.NewMockLogger()
	c := NewLookupCache(repo, l2, log)

	id, err := c.Resolve(context.Background(), perfume.TableBrands, "Creed")
	require.NoError(t, err)
	assert.Equal(t, "b-7", id)
	assert.True(t, log.HasMessage("warn", "lookup store read failed"))
	assert.True(t, log.HasMessage("warn", "lookup store write failed"))
}
