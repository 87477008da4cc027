package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/internal/testutil"
)

var _ logging.Logger = (*testutil.MockLogger)(nil)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Warn("eligibility fallback", logging.Int("threshold", 10))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "warn", messages[0].Level)
	assert.True(t, logger.HasMessage("warn", "eligibility fallback"))
	assert.Equal(t, 1, logger.Count("warn", "eligibility fallback"))

	v, ok := logger.FieldValue("eligibility fallback", "threshold")
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = logger.FieldValue("eligibility fallback", "missing")
	assert.False(t, ok)

	logger.Clear()
	assert.Empty(t, logger.GetMessages())
}
