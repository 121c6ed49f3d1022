package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowrunner/engine"
)

func runTime(t *testing.T, params, inputs map[string]interface{}) *engine.NodeOutput {
	t.Helper()
	v, err := Time(context.Background(), nodeCtx(params, inputs))
	require.NoError(t, err)
	return v.(*engine.NodeOutput)
}

func TestTimeCurrentTimeFields(t *testing.T) {
	// pinnedNow is Saturday 2024-06-15 10:30:00 UTC.
	out := runTime(t, nil, nil)

	assert.Equal(t, "2024-06-15T10:30:00Z", out.Primary())
	year, _ := out.Get("year")
	assert.Equal(t, 2024, year)
	month, _ := out.Get("month")
	assert.Equal(t, 6, month)
	monthName, _ := out.Get("month_name")
	assert.Equal(t, "June", monthName)
	day, _ := out.Get("day")
	assert.Equal(t, 15, day)
	// Weekdays are numbered 0=Monday, so Saturday is 5.
	dow, _ := out.Get("day_of_week")
	assert.Equal(t, 5, dow)
	dayName, _ := out.Get("day_name")
	assert.Equal(t, "Saturday", dayName)
	weekend, _ := out.Get("is_weekend")
	assert.Equal(t, true, weekend)
	quarter, _ := out.Get("quarter")
	assert.Equal(t, 2, quarter)
	week, _ := out.Get("week_of_year")
	assert.Equal(t, 24, week)
	dim, _ := out.Get("days_in_month")
	assert.Equal(t, 30, dim)
	leap, _ := out.Get("is_leap_year")
	assert.Equal(t, true, leap)
	tz, _ := out.Get("timezone")
	assert.Equal(t, "UTC", tz)
	unix, _ := out.Get("unix_timestamp")
	assert.Equal(t, pinnedNow.Unix(), unix)
}

func TestTimeParseInput(t *testing.T) {
	out := runTime(t, map[string]interface{}{
		"operation": "parse_input",
		"inputDate": "2023-03-01",
	}, nil)

	assert.Equal(t, "2023-03-01T00:00:00Z", out.Primary())
}

func TestTimeStringInputIsTheDate(t *testing.T) {
	out := runTime(t,
		map[string]interface{}{"operation": "parse_input"},
		map[string]interface{}{"input": "2022-12-25"},
	)
	day, _ := out.Get("day")
	assert.Equal(t, 25, day)
}

func TestTimeParseInputUnixSeconds(t *testing.T) {
	out := runTime(t, map[string]interface{}{
		"operation": "parse_input",
		"inputDate": float64(1700000000),
	}, nil)

	assert.Equal(t, time.Unix(1700000000, 0).UTC().Format(time.RFC3339), out.Primary())
}

func TestTimeParseInputInvalid(t *testing.T) {
	_, err := Time(context.Background(), nodeCtx(map[string]interface{}{
		"operation": "parse_input",
		"inputDate": "not a date",
	}, nil))
	require.Error(t, err)
	assert.Equal(t, engine.KindHandlerError, engine.KindOf(err))
}

func TestTimeAddDays(t *testing.T) {
	out := runTime(t, map[string]interface{}{
		"operation":   "add_time",
		"modifyValue": 3,
		"modifyUnit":  "days",
	}, nil)

	day, _ := out.Get("day")
	assert.Equal(t, 18, day)
}

func TestTimeSubtractHours(t *testing.T) {
	out := runTime(t, map[string]interface{}{
		"operation":   "subtract_time",
		"modifyValue": 12,
		"modifyUnit":  "hours",
	}, nil)

	day, _ := out.Get("day")
	assert.Equal(t, 14, day)
	hour, _ := out.Get("hour")
	assert.Equal(t, 22, hour)
}

func TestTimeAddMonthsClampsDay(t *testing.T) {
	// Jan 31 + 1 month lands on Feb 29 in a leap year, not Mar 2.
	nc := nodeCtx(map[string]interface{}{
		"operation":   "add_time",
		"modifyValue": 1,
		"modifyUnit":  "months",
	}, nil)
	nc.Now = func() time.Time { return time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC) }

	v, err := Time(context.Background(), nc)
	require.NoError(t, err)
	out := v.(*engine.NodeOutput)
	month, _ := out.Get("month")
	assert.Equal(t, 2, month)
	day, _ := out.Get("day")
	assert.Equal(t, 29, day)
}

func TestTimeAddBusinessDaysSkipsWeekend(t *testing.T) {
	// Saturday + 1 business day is Monday.
	out := runTime(t, map[string]interface{}{
		"operation":   "add_time",
		"modifyValue": 1,
		"modifyUnit":  "business_days",
	}, nil)

	dayName, _ := out.Get("day_name")
	assert.Equal(t, "Monday", dayName)
	day, _ := out.Get("day")
	assert.Equal(t, 17, day)
}

func TestTimeStartOfWeekIsMonday(t *testing.T) {
	out := runTime(t, map[string]interface{}{
		"operation":  "start_of",
		"modifyUnit": "week",
	}, nil)

	dayName, _ := out.Get("day_name")
	assert.Equal(t, "Monday", dayName)
	day, _ := out.Get("day")
	assert.Equal(t, 10, day)
	hour, _ := out.Get("hour")
	assert.Equal(t, 0, hour)
}

func TestTimeEndOfMonth(t *testing.T) {
	out := runTime(t, map[string]interface{}{
		"operation":  "end_of",
		"modifyUnit": "month",
	}, nil)

	day, _ := out.Get("day")
	assert.Equal(t, 30, day)
	hour, _ := out.Get("hour")
	assert.Equal(t, 23, hour)
}

func TestTimeNextWeekday(t *testing.T) {
	// From Saturday, the next Monday (0) is June 17.
	out := runTime(t, map[string]interface{}{
		"operation":  "next_weekday",
		"modifyUnit": "0",
	}, nil)

	day, _ := out.Get("day")
	assert.Equal(t, 17, day)

	// The previous Saturday (5) is a full week back, never today.
	out = runTime(t, map[string]interface{}{
		"operation":  "previous_weekday",
		"modifyUnit": "5",
	}, nil)
	day, _ = out.Get("day")
	assert.Equal(t, 8, day)
}

func TestTimeCustomFormat(t *testing.T) {
	out := runTime(t, map[string]interface{}{
		"customFormat": "%d/%m/%Y %H:%M",
	}, nil)

	formatted, _ := out.Get("custom_formatted")
	assert.Equal(t, "15/06/2024 10:30", formatted)
}

func TestTimeObjectInputOverridesParams(t *testing.T) {
	out := runTime(t,
		map[string]interface{}{"operation": "current_time"},
		map[string]interface{}{"input": map[string]interface{}{
			"operation": "add_time",
			// Values arrive as floats when the object came from JSON.
			"modifyValue": float64(2),
			"modifyUnit":  "day",
		}},
	)

	day, _ := out.Get("day")
	assert.Equal(t, 17, day)
}

func TestTimeUnknownTimezoneFallsBackToUTC(t *testing.T) {
	out := runTime(t, map[string]interface{}{"timezone": "Mars/Olympus"}, nil)
	tz, _ := out.Get("timezone")
	assert.Equal(t, "UTC", tz)
}
