package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(t *testing.T, layout string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", layout, IST())
	if err != nil {
		t.Fatalf("parse %q: %v", layout, err)
	}
	return ts
}

func TestStatusAt(t *testing.T) {
	sched := DefaultSchedule()

	tests := []struct {
		name   string
		when   string
		open   bool
		reason string
	}{
		{"pre-open", "2024-03-04 09:14", false, ReasonOffHours},
		{"open bell", "2024-03-04 09:15", true, ReasonLive},
		{"midday", "2024-03-05 12:00", true, ReasonLive},
		{"closing bell", "2024-03-05 15:30", true, ReasonLive},
		{"after close", "2024-03-05 15:31", false, ReasonOffHours},
		{"saturday", "2024-03-09 11:00", false, ReasonWeekend},
		{"sunday", "2024-03-10 11:00", false, ReasonWeekend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := StatusAt(at(t, tt.when), sched)
			assert.Equal(t, tt.open, s.IsOpen)
			assert.Equal(t, tt.reason, s.Reason)
		})
	}
}

func TestTimeToOpen(t *testing.T) {
	sched := DefaultSchedule()

	// Friday after close opens Monday 09:15
	s := StatusAt(at(t, "2024-03-08 16:00"), sched)
	assert.Equal(t, 65*time.Hour+15*time.Minute, s.TimeToOpen)

	s = StatusAt(at(t, "2024-03-09 09:15"), sched)
	assert.Equal(t, 48*time.Hour, s.TimeToOpen)

	s = StatusAt(at(t, "2024-03-04 09:00"), sched)
	assert.Equal(t, 15*time.Minute, s.TimeToOpen)

	s = StatusAt(at(t, "2024-03-04 15:00"), sched)
	assert.Equal(t, 30*time.Minute, s.TimeToClose)
}

func TestStatusAtConvertsZone(t *testing.T) {
	// 04:00 UTC is 09:30 IST
	s := StatusAt(time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC), DefaultSchedule())
	assert.True(t, s.IsOpen)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "12m", FormatDuration(12*time.Minute))
	assert.Equal(t, "3h 5m", FormatDuration(3*time.Hour+5*time.Minute))
}
