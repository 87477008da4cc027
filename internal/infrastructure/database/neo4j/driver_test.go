package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/fragrance-etl/pkg/errors"
)

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return m.Called(ctx, config).Get(0).(internalSession)
}
func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSession runs work against tx, or fails with err when set.
type MockSession struct {
	mock.Mock
	tx  Transaction
	err error
}

func (m *MockSession) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	if m.err != nil {
		return nil, m.err
	}
	return work(m.tx)
}
func (m *MockSession) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	if m.err != nil {
		return nil, m.err
	}
	return work(m.tx)
}
func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockTransaction struct {
	mock.Mock
}

func (m *MockTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	args := m.Called(ctx, cypher, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Result), args.Error(1)
}

type sliceResult struct {
	records []*neo4j.Record
	pos     int
}

func (r *sliceResult) Next(ctx context.Context) bool {
	if r.pos < len(r.records) {
		r.pos++
		return true
	}
	return false
}
func (r *sliceResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *sliceResult) Err() error            { return nil }
func (r *sliceResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return nil, nil
}

func TestDriver_HealthCheck(t *testing.T) {
	md := new(MockDriver)
	tx := new(MockTransaction)
	sess := &MockSession{tx: tx}
	md.On("VerifyConnectivity", mock.Anything).Return(nil)
	md.On("NewSession", mock.Anything, mock.MatchedBy(func(c neo4j.SessionConfig) bool {
		return c.DatabaseName == "catalog" && c.AccessMode == neo4j.AccessModeRead
	})).Return(sess)
	sess.On("Close", mock.Anything).Return(nil)
	tx.On("Run", mock.Anything, "RETURN 1 AS health", mock.Anything).
		Return(&sliceResult{records: []*neo4j.Record{{Keys: []string{"health"}, Values: []any{int64(1)}}}}, nil)

	d := newDriver(md, "catalog", logging.NewNopLogger())
	require.NoError(t, d.HealthCheck(context.Background()))
	sess.AssertCalled(t, "Close", mock.Anything)
}

func TestDriver_HealthCheck_Unreachable(t *testing.T) {
	md := new(MockDriver)
	md.On("VerifyConnectivity", mock.Anything).Return(errors.New("dial tcp: refused"))

	d := newDriver(md, DefaultDatabase, logging.NewNopLogger())
	err := d.HealthCheck(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))
}

func TestDriver_ExecuteWrite_WrapsFailure(t *testing.T) {
	md := new(MockDriver)
	sess := &MockSession{err: errors.New("deadlock")}
	md.On("NewSession", mock.Anything, mock.Anything).Return(sess)
	sess.On("Close", mock.Anything).Return(nil)

	d := newDriver(md, DefaultDatabase, logging.NewNopLogger())
	_, err := d.ExecuteWrite(context.Background(), func(Transaction) (any, error) { return nil, nil })
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
	assert.Contains(t, err.Error(), "deadlock")
}

func TestDriver_Close_Once(t *testing.T) {
	md := new(MockDriver)
	md.On("Close", mock.Anything).Return(nil).Once()

	d := newDriver(md, DefaultDatabase, logging.NewNopLogger())
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
	md.AssertNumberOfCalls(t, "Close", 1)
}

func TestCollectRecords(t *testing.T) {
	res := &sliceResult{records: []*neo4j.Record{
		{Keys: []string{"name"}, Values: []any{"rose"}},
		{Keys: []string{"name"}, Values: []any{"musk"}},
	}}
	names, err := CollectRecords(context.Background(), res, func(r *neo4j.Record) (string, error) {
		return r.Values[0].(string), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rose", "musk"}, names)
}
