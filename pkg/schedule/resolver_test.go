package schedule

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func TestResolveScenarios(t *testing.T) {
	r := NewResolver(time.UTC, 0)

	tests := []struct {
		name    string
		now     string
		day     Day
		hour    int
		minute  int
		want    string
		wantErr error
	}{
		{name: "today_only_one_hour_ahead", now: "2024-01-01T10:00:00Z", day: Today, hour: 11, minute: 0, wantErr: ErrLeadTimeTooShort},
		{name: "today_past_lead_time", now: "2024-01-01T10:00:00Z", day: Today, hour: 13, minute: 1, want: "2024-01-01T13:01:00Z"},
		{name: "tomorrow_after_midnight", now: "2024-01-01T23:30:00Z", day: Tomorrow, hour: 0, minute: 15, want: "2024-01-02T00:15:00Z"},
		{name: "today_exactly_lead_time", now: "2024-01-01T10:00:00Z", day: Today, hour: 12, minute: 0, wantErr: ErrLeadTimeTooShort},
		{name: "today_already_passed", now: "2024-01-01T10:00:00Z", day: Today, hour: 9, minute: 59, wantErr: ErrTimeAlreadyPassed},
		{name: "today_equal_now", now: "2024-01-01T10:00:00Z", day: Today, hour: 10, minute: 0, wantErr: ErrTimeAlreadyPassed},
		{name: "tomorrow_earlier_clock", now: "2024-01-01T10:00:00Z", day: Tomorrow, hour: 9, minute: 0, want: "2024-01-02T09:00:00Z"},
		{name: "tomorrow_crosses_month", now: "2024-01-31T22:00:00Z", day: Tomorrow, hour: 6, minute: 30, want: "2024-02-01T06:30:00Z"},
		{name: "hour_out_of_range", now: "2024-01-01T10:00:00Z", day: Today, hour: 24, minute: 0, wantErr: ErrInvalidTimeComponent},
		{name: "minute_out_of_range", now: "2024-01-01T10:00:00Z", day: Tomorrow, hour: 1, minute: 60, wantErr: ErrInvalidTimeComponent},
		{name: "unknown_day", now: "2024-01-01T10:00:00Z", day: Day("yesterday"), hour: 1, minute: 0, wantErr: ErrInvalidDay},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.day, tc.hour, tc.minute, mustTime(t, tc.now))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v (result %s)", tc.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := mustTime(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %s, want %s", got, want)
			}
			if got.Location() != time.UTC {
				t.Fatalf("result not normalised to UTC: %s", got.Location())
			}
		})
	}
}

func TestResolveComponentErrorNamesField(t *testing.T) {
	r := NewResolver(time.UTC, 0)
	now := mustTime(t, "2024-01-01T10:00:00Z")

	_, err := r.Resolve(Today, -1, 0, now)
	var ce *ComponentError
	if !errors.As(err, &ce) || ce.Component != "hour" {
		t.Fatalf("expected hour component error, got %v", err)
	}

	_, err = r.Resolve(Today, 13, 99, now)
	if !errors.As(err, &ce) || ce.Component != "minute" {
		t.Fatalf("expected minute component error, got %v", err)
	}
	if ce.Error() == (&ComponentError{Component: "hour"}).Error() {
		t.Fatal("hour and minute failures must read differently")
	}
}

func TestResolveInputRejectsBlankAndNonNumeric(t *testing.T) {
	r := NewResolver(time.UTC, 0)
	now := mustTime(t, "2024-01-01T10:00:00Z")

	tests := []struct {
		name      string
		in        Input
		component string
	}{
		{name: "empty_hour", in: Input{Day: "today", Hour: "", Minute: "10"}, component: "hour"},
		{name: "empty_minute", in: Input{Day: "today", Hour: "15", Minute: ""}, component: "minute"},
		{name: "letters_hour", in: Input{Day: "tomorrow", Hour: "ab", Minute: "10"}, component: "hour"},
		{name: "fraction_minute", in: Input{Day: "tomorrow", Hour: "10", Minute: "1.5"}, component: "minute"},
		{name: "both_bad_reports_hour", in: Input{Day: "today", Hour: "x", Minute: "y"}, component: "hour"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.ResolveInput(tc.in, now)
			var ce *ComponentError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ComponentError, got %v", err)
			}
			if ce.Component != tc.component {
				t.Fatalf("component = %s, want %s", ce.Component, tc.component)
			}
		})
	}

	got, err := r.ResolveInput(Input{Day: "Tomorrow", Hour: "08", Minute: "05"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustTime(t, "2024-01-02T08:05:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestResolveTomorrowAlwaysNextCivilDay(t *testing.T) {
	r := NewResolver(time.UTC, 0)
	now := mustTime(t, "2024-03-15T17:42:31Z")
	wantDay := now.AddDate(0, 0, 1).Format("2006-01-02")

	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			got, err := r.Resolve(Tomorrow, h, m, now)
			if err != nil {
				t.Fatalf("%02d:%02d: %v", h, m, err)
			}
			if got.Format("2006-01-02") != wantDay {
				t.Fatalf("%02d:%02d resolved to %s", h, m, got)
			}
			if got.Hour() != h || got.Minute() != m || got.Second() != 0 {
				t.Fatalf("%02d:%02d resolved to %s", h, m, got)
			}
			if !got.After(now) {
				t.Fatalf("%02d:%02d not after now", h, m)
			}
		}
	}
}

func TestResolveTodayBoundary(t *testing.T) {
	r := NewResolver(time.UTC, 0)
	now := mustTime(t, "2024-01-01T06:00:00Z")
	limit := now.Add(DefaultLeadTime)

	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			candidate := time.Date(2024, 1, 1, h, m, 0, 0, time.UTC)
			got, err := r.Resolve(Today, h, m, now)
			if candidate.After(limit) {
				if err != nil || !got.Equal(candidate) {
					t.Fatalf("%02d:%02d: got %s, %v", h, m, got, err)
				}
				continue
			}
			if err == nil {
				t.Fatalf("%02d:%02d: expected rejection, got %s", h, m, got)
			}
		}
	}
}

func TestResolveUsesCivilTime(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	r := NewResolver(msk, 0)
	// 22:30 UTC is already 01:30 on Jan 2 in Moscow.
	now := mustTime(t, "2024-01-01T22:30:00Z")

	got, err := r.Resolve(Today, 9, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustTime(t, "2024-01-02T06:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	got, err = r.Resolve(Tomorrow, 9, 0, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustTime(t, "2024-01-03T06:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestResolveIdempotentAndConcurrent(t *testing.T) {
	r := NewResolver(time.UTC, 0)
	now := mustTime(t, "2024-01-01T10:00:00Z")
	first, firstErr := r.Resolve(Today, 15, 30, now)

	var wg sync.WaitGroup
	errs := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve(Today, 15, 30, now)
			if !got.Equal(first) || !errors.Is(err, firstErr) {
				errs <- got.String()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatalf("result drifted: %s", e)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Input
		wantErr bool
	}{
		{in: "13:01", want: Input{Hour: "13", Minute: "01"}},
		{in: " 7.30 ", want: Input{Hour: "7", Minute: "30"}},
		{in: "7 30", want: Input{Hour: "7", Minute: "30"}},
		{in: "1301", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidTimeComponent) {
				t.Errorf("ParseClock(%q): expected error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseClock(%q) = %+v, %v", tc.in, got, err)
		}
	}
}
