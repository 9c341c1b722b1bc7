// Package market answers whether the NSE cash market is trading.
package market

import (
	"fmt"
	"time"
)

// Schedule is the regular session in exchange-local time
type Schedule struct {
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
}

// DefaultSchedule NSE regular session, 09:15-15:30 IST. Both bounds count as open.
func DefaultSchedule() Schedule {
	return Schedule{
		OpenHour:  9,
		OpenMin:   15,
		CloseHour: 15,
		CloseMin:  30,
	}
}

// Reasons reported by Status
const (
	ReasonLive     = "LIVE"
	ReasonWeekend  = "WEEKEND"
	ReasonOffHours = "OFF-HOURS"
)

// Status is the market state at an instant
type Status struct {
	IsOpen      bool          `json:"isOpen"`
	Reason      string        `json:"reason"`
	CurrentIST  time.Time     `json:"currentTime"`
	TimeToOpen  time.Duration `json:"timeToOpen,omitempty"`
	TimeToClose time.Duration `json:"timeToClose,omitempty"`
}

// IST returns the India Standard Time location
func IST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// no DST in India
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// StatusAt returns the market status at t
func StatusAt(t time.Time, schedule Schedule) Status {
	loc := IST()
	now := t.In(loc)
	status := Status{CurrentIST: now}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	openAt := func(day time.Time) time.Time {
		return day.Add(time.Duration(schedule.OpenHour)*time.Hour + time.Duration(schedule.OpenMin)*time.Minute)
	}
	closeTime := today.Add(time.Duration(schedule.CloseHour)*time.Hour + time.Duration(schedule.CloseMin)*time.Minute)

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		status.Reason = ReasonWeekend
		status.TimeToOpen = openAt(nextWeekday(today)).Sub(now)
		return status
	}

	minutes := now.Hour()*60 + now.Minute()
	openMinutes := schedule.OpenHour*60 + schedule.OpenMin
	closeMinutes := schedule.CloseHour*60 + schedule.CloseMin

	switch {
	case minutes < openMinutes:
		status.Reason = ReasonOffHours
		status.TimeToOpen = openAt(today).Sub(now)
	case minutes > closeMinutes:
		status.Reason = ReasonOffHours
		status.TimeToOpen = openAt(nextWeekday(today)).Sub(now)
	default:
		status.IsOpen = true
		status.Reason = ReasonLive
		status.TimeToClose = closeTime.Sub(now)
	}
	return status
}

// Current returns the market status now
func Current() Status {
	return StatusAt(time.Now(), DefaultSchedule())
}

func nextWeekday(day time.Time) time.Time {
	next := day.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// FormatDuration renders a wait as "3h 5m" or "12m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
