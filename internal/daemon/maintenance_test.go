package daemon

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/memoranda/internal/metrics"
)

type MockWarmer struct {
	mock.Mock
}

func (m *MockWarmer) WarmCache(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockWarmer) ClearCache() {
	m.Called()
}

func TestMaintenanceRunOnce(t *testing.T) {
	w := new(MockWarmer)
	w.On("ClearCache").Return()
	w.On("WarmCache", mock.Anything).Return(4, nil)

	met := metrics.NewMetrics()
	m := NewMaintenance(w, zerolog.Nop(), met)
	m.RunOnce()

	runs, warmed := m.Stats()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 4, warmed)
	assert.Equal(t, 4.0, testutil.ToFloat64(met.MemosTotal))
	w.AssertExpectations(t)
}

func TestMaintenanceWarmFailure(t *testing.T) {
	w := new(MockWarmer)
	w.On("ClearCache").Return()
	w.On("WarmCache", mock.Anything).Return(0, errors.New("disk gone"))

	m := NewMaintenance(w, zerolog.Nop(), nil)
	m.RunOnce()

	runs, _ := m.Stats()
	assert.Equal(t, 0, runs)
}

func TestMaintenanceSchedule(t *testing.T) {
	m := NewMaintenance(new(MockWarmer), zerolog.Nop(), nil)

	require.NoError(t, m.Schedule(""))
	assert.False(t, m.Scheduled())

	assert.Error(t, m.Schedule("not a schedule"))
	assert.False(t, m.Scheduled())

	require.NoError(t, m.Schedule("@every 1h"))
	assert.True(t, m.Scheduled())
}

func TestMaintenanceStopsRunningAfterCancel(t *testing.T) {
	w := new(MockWarmer)
	w.On("ClearCache").Return()
	w.On("WarmCache", mock.Anything).Return(1, nil).Once()

	m := NewMaintenance(w, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()

	m.RunOnce()
	w.AssertNumberOfCalls(t, "WarmCache", 1)
}
