package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// every fires at a fixed interval below robfig's one-second floor.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		tz      string
		wantErr bool
	}{
		{"five fields", "0 */6 * * *", "", false},
		{"every descriptor", "@every 6h", "", false},
		{"daily descriptor", "@daily", "Africa/Johannesburg", false},
		{"seconds field rejected", "0 0 */6 * * *", "", true},
		{"garbage", "whenever", "", true},
		{"empty", "  ", "", true},
		{"bad timezone", "@hourly", "Nowhere/Special", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, loc, err := Parse(tt.expr, tt.tz)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sched)
			assert.NotNil(t, loc)
		})
	}
}

func TestParseNext(t *testing.T) {
	sched, loc, err := Parse("30 2 * * *", "UTC")
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC), sched.Next(now.In(loc)))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.False(t, Config{Scan: " "}.Enabled())
	assert.NoError(t, Config{Scan: "@every 30m"}.Validate())
	assert.Error(t, Config{Scan: "* *"}.Validate())
}

func TestSchedulerRunsJob(t *testing.T) {
	var runs atomic.Int32
	s := New("scan", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	s.setSchedule("@test", every(15*time.Millisecond), time.UTC)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	st := s.Status()
	assert.True(t, st.Enabled)
	assert.Equal(t, "@test", st.Expr)
	assert.False(t, st.LastRun.IsZero())
	assert.Empty(t, st.LastError)
	assert.GreaterOrEqual(t, st.Runs, int64(2))
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	s := New("scan", func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	})
	s.setSchedule("@test", every(5*time.Millisecond), time.UTC)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Status().Skipped > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Status().Running)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	s.Stop()
	assert.False(t, s.Status().Running)
}

func TestSchedulerRecordsError(t *testing.T) {
	s := New("scan", func(ctx context.Context) error {
		return errors.New("chat list did not load")
	})
	s.setSchedule("@test", every(10*time.Millisecond), time.UTC)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Status().LastError != "" }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Equal(t, "chat list did not load", s.Status().LastError)
}

func TestSchedulerDisabled(t *testing.T) {
	var runs atomic.Int32
	s := New("scan", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, s.SetSchedule(Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start")

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, runs.Load())
	assert.False(t, s.Status().Enabled)
	assert.Equal(t, maxSleep, s.nextWake())

	require.NoError(t, s.SetSchedule(Config{Scan: "@hourly", Timezone: "UTC"}))
	st := s.Status()
	assert.True(t, st.Enabled)
	assert.True(t, st.NextRun.After(time.Now()))

	assert.Error(t, s.SetSchedule(Config{Scan: "nope"}))
	assert.Equal(t, "@hourly", s.Status().Expr, "bad expression keeps the old schedule")

	cancel()
	s.Stop()
}
