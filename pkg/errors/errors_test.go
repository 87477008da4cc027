package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal", errors.ErrCodeInternal, "unexpected failure"},
		{"source", errors.ErrCodeSourceRead, "catalog unreadable"},
		{"lookup", errors.ErrCodeLookupFailed, "brand lookup failed"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)
			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.Contains(t, ae.Stack, "errors_test.go")
		})
	}
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeSourceHeader, "missing columns").WithDetail("Brand")
	assert.Equal(t, "[CATALOG_002] missing columns: Brand", ae.Error())

	wrapped := errors.Wrap(stderrors.New("eof"), errors.ErrCodeSourceRead, "read catalog")
	assert.Equal(t, "[CATALOG_001] read catalog (eof)", wrapped.Error())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, errors.Wrap(nil, errors.ErrCodeInternal, "x"))
	assert.Nil(t, errors.Wrapf(nil, errors.ErrCodeInternal, "x %d", 1))
}

func TestWrap_PreservesCodeWhenUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeUpsertFailed, "batch failed")
	outer := errors.Wrap(inner, errors.CodeUnknown, "sync")
	assert.Equal(t, errors.ErrCodeUpsertFailed, outer.Code)
}

func TestIsCode_TraversesChain(t *testing.T) {
	t.Parallel()

	root := errors.New(errors.ErrCodeLookupNotFound, "brand missing")
	mid := errors.Wrap(root, errors.ErrCodeLookupFailed, "resolve")
	outer := fmt.Errorf("loader: %w", mid)

	assert.True(t, errors.IsCode(outer, errors.ErrCodeLookupFailed))
	assert.True(t, errors.IsCode(outer, errors.ErrCodeLookupNotFound))
	assert.False(t, errors.IsCode(outer, errors.ErrCodeUpsertFailed))
	assert.True(t, errors.IsNotFound(outer))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeInternal))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeIndexFailed, errors.GetCode(errors.New(errors.ErrCodeIndexFailed, "bulk")))
}

func TestWithDetail_DoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	base := errors.NotFound("brand")
	withDetail := base.WithDetail("value=chanel")
	assert.Empty(t, base.Detail)
	assert.Equal(t, "value=chanel", withDetail.Detail)

	var nilErr *errors.AppError
	assert.Nil(t, nilErr.WithDetail("x"))
	assert.Nil(t, nilErr.WithCause(stderrors.New("x")))
}

func TestUnwrap_WorksWithStdlib(t *testing.T) {
	t.Parallel()

	sentinel := stderrors.New("sentinel")
	ae := errors.Wrap(sentinel, errors.ErrCodeDatabaseError, "query")
	assert.True(t, stderrors.Is(ae, sentinel))

	var target *errors.AppError
	require.True(t, errors.As(fmt.Errorf("ctx: %w", ae), &target))
	assert.Equal(t, errors.ErrCodeDatabaseError, target.Code)
}

func TestCodeHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CATALOG", errors.ModuleForCode(errors.ErrCodeSourceRead))
	assert.Equal(t, "LOAD", errors.ModuleForCode(errors.ErrCodeUpsertFailed))
	assert.Equal(t, "UNKNOWN", errors.ModuleForCode(errors.ErrorCode("bogus")))
	assert.Equal(t, "perfume upsert failed", errors.DefaultMessageForCode(errors.ErrCodeUpsertFailed))
	assert.Equal(t, "unknown error", errors.DefaultMessageForCode(errors.ErrorCode("nope")))
	assert.True(t, errors.IsRetryable(errors.ErrCodeDatabaseError))
	assert.False(t, errors.IsRetryable(errors.ErrCodeSourceHeader))
}
