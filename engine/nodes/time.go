package nodes

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lyzr/flowrunner/engine"
)

// timeLayouts are the accepted inputDate formats, tried in order.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01-02-2006",
	"01/02/2006",
	"Jan 2 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// Time produces timezone-aware current or derived time. Operations:
// current_time, parse_input, add_time, subtract_time, start_of, end_of,
// next_weekday, previous_weekday. Weekdays are numbered 0=Monday.
func Time(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	tzName, _ := nc.Params["timezone"].(string)
	operation, _ := nc.Params["operation"].(string)
	if operation == "" {
		operation = "current_time"
	}
	customFormat, _ := nc.Params["customFormat"].(string)
	inputDate := nc.Params["inputDate"]
	modifyValue := intParam(nc.Params["modifyValue"])
	modifyUnit, _ := nc.Params["modifyUnit"].(string)
	if modifyUnit == "" {
		modifyUnit = "days"
	}

	// An object input overrides the params; a string input is the date to
	// parse.
	switch in := nc.Inputs["input"].(type) {
	case map[string]interface{}:
		if v, ok := in["timezone"].(string); ok {
			tzName = v
		}
		if v, ok := in["operation"].(string); ok {
			operation = v
		}
		if v, ok := in["inputDate"]; ok {
			inputDate = v
		}
		if v, ok := in["modifyValue"]; ok {
			modifyValue = intParam(v)
		}
		if v, ok := in["modifyUnit"].(string); ok {
			modifyUnit = v
		}
		if v, ok := in["customFormat"].(string); ok {
			customFormat = v
		}
	case string:
		if in != "" {
			inputDate = in
		}
	}

	loc := loadLocation(tzName, nc)
	if tzName == "" || loc == time.UTC {
		tzName = "UTC"
	}

	var current time.Time
	if operation == "parse_input" && inputDate != nil && inputDate != "" {
		parsed, ok := parseInputDate(inputDate)
		if !ok {
			return nil, engine.Errorf(engine.KindHandlerError, "node %s: could not parse date from %v", nc.NodeID, inputDate)
		}
		current = parsed.In(loc)
	} else {
		current = nc.Now().In(loc)
	}

	switch operation {
	case "add_time":
		current = shiftTime(current, normalizeUnit(modifyUnit), modifyValue)
	case "subtract_time":
		current = shiftTime(current, normalizeUnit(modifyUnit), -modifyValue)
	case "start_of":
		current = startOf(current, normalizeUnit(modifyUnit))
	case "end_of":
		current = endOf(current, normalizeUnit(modifyUnit))
	case "next_weekday":
		// The unit param carries the target weekday number.
		current = nextWeekday(current, intParam(modifyUnit), true)
	case "previous_weekday":
		current = nextWeekday(current, intParam(modifyUnit), false)
	}

	return timeFields(current, tzName, customFormat), nil
}

func intParam(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}

func loadLocation(name string, nc *engine.NodeContext) *time.Location {
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		nc.Logger.Warn("unknown timezone, falling back to UTC", "node_id", nc.NodeID, "timezone", name)
		return time.UTC
	}
	return loc
}

func parseInputDate(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeUnit collapses singular and plural unit spellings.
func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, "s")
	if u == "business_day" || u == "business day" {
		return "business_day"
	}
	return u
}

func shiftTime(t time.Time, unit string, amount int) time.Time {
	switch unit {
	case "second":
		return t.Add(time.Duration(amount) * time.Second)
	case "minute":
		return t.Add(time.Duration(amount) * time.Minute)
	case "hour":
		return t.Add(time.Duration(amount) * time.Hour)
	case "day":
		return t.AddDate(0, 0, amount)
	case "week":
		return t.AddDate(0, 0, amount*7)
	case "month":
		return addMonths(t, amount)
	case "year":
		return addYears(t, amount)
	case "business_day":
		return addBusinessDays(t, amount)
	default:
		return t
	}
}

// addMonths clamps the day to the target month's length instead of letting
// the date roll over (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, months int) time.Time {
	year := t.Year()
	month := int(t.Month()) + months
	year += (month - 1) / 12
	month = (month-1)%12 + 1
	if month <= 0 {
		month += 12
		year--
	}
	day := t.Day()
	if last := daysInMonth(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func addYears(t time.Time, years int) time.Time {
	year := t.Year() + years
	day := t.Day()
	if t.Month() == time.February && day == 29 && !isLeapYear(year) {
		day = 28
	}
	return time.Date(year, t.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// addBusinessDays walks day by day, skipping Saturdays and Sundays.
func addBusinessDays(t time.Time, amount int) time.Time {
	step := 1
	if amount < 0 {
		step = -1
		amount = -amount
	}
	for amount > 0 {
		t = t.AddDate(0, 0, step)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			amount--
		}
	}
	return t
}

func startOf(t time.Time, unit string) time.Time {
	switch unit {
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case "week":
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return d.AddDate(0, 0, -mondayIndex(t.Weekday()))
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "quarter":
		qm := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), qm, 1, 0, 0, 0, 0, t.Location())
	case "year":
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

func endOf(t time.Time, unit string) time.Time {
	endOfDay := func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 999999000, d.Location())
	}
	switch unit {
	case "day":
		return endOfDay(t)
	case "week":
		return endOfDay(t.AddDate(0, 0, 6-mondayIndex(t.Weekday())))
	case "month":
		return endOfDay(time.Date(t.Year(), t.Month(), daysInMonth(t.Year(), t.Month()), 0, 0, 0, 0, t.Location()))
	case "quarter":
		em := time.Month((int(t.Month())-1)/3*3 + 3)
		return endOfDay(time.Date(t.Year(), em, daysInMonth(t.Year(), em), 0, 0, 0, 0, t.Location()))
	case "year":
		return endOfDay(time.Date(t.Year(), time.December, 31, 0, 0, 0, 0, t.Location()))
	default:
		return t
	}
}

// nextWeekday finds the next (or previous) occurrence of the target
// weekday, never the current day, normalized to midnight.
func nextWeekday(t time.Time, target int, forward bool) time.Time {
	if target < 0 || target > 6 {
		return t
	}
	cur := mondayIndex(t.Weekday())
	if forward {
		ahead := target - cur
		if ahead <= 0 {
			ahead += 7
		}
		t = t.AddDate(0, 0, ahead)
	} else {
		back := cur - target
		if back <= 0 {
			back += 7
		}
		t = t.AddDate(0, 0, -back)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayIndex numbers weekdays 0=Monday through 6=Sunday.
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// isDST reports whether t falls in the zone's daylight-saving period, by
// comparing its offset to the year's minimum offset.
func isDST(t time.Time) bool {
	_, offset := t.Zone()
	_, jan := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location()).Zone()
	_, jul := time.Date(t.Year(), time.July, 1, 0, 0, 0, 0, t.Location()).Zone()
	if jan == jul {
		return false
	}
	min := jan
	if jul < min {
		min = jul
	}
	return offset != min
}

func timeFields(t time.Time, tzName, customFormat string) *engine.NodeOutput {
	iso := t.Format(time.RFC3339)
	_, offsetSec := t.Zone()

	customFormatted := ""
	if customFormat != "" {
		customFormatted = t.Format(strftimeToLayout(customFormat))
	}

	out := engine.NewNodeOutput()
	out.Set("output", iso)
	out.Set("iso", iso)
	out.Set("timestamp", float64(t.UnixNano())/1e9)
	out.Set("timestamp_ms", t.UnixMilli())
	out.Set("unix_timestamp", t.Unix())
	out.Set("year", t.Year())
	out.Set("month", int(t.Month()))
	out.Set("month_name", t.Month().String())
	out.Set("day", t.Day())
	out.Set("day_of_week", mondayIndex(t.Weekday()))
	out.Set("day_name", t.Weekday().String())
	out.Set("hour", t.Hour())
	out.Set("minute", t.Minute())
	out.Set("second", t.Second())
	out.Set("timezone", tzName)
	out.Set("utc_offset", float64(offsetSec)/3600)
	out.Set("is_dst", isDST(t))
	out.Set("is_weekend", t.Weekday() == time.Saturday || t.Weekday() == time.Sunday)
	out.Set("quarter", (int(t.Month())-1)/3+1)
	_, week := t.ISOWeek()
	out.Set("week_of_year", week)
	out.Set("days_in_month", daysInMonth(t.Year(), t.Month()))
	out.Set("is_leap_year", isLeapYear(t.Year()))
	out.Set("formatted", t.Format("2006-01-02 15:04:05 MST-0700"))
	out.Set("custom_formatted", customFormatted)
	return out
}

// strftimeReplacements maps the strftime directives workflow documents use
// to Go layout fragments.
var strftimeReplacements = []string{
	"%Y", "2006",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%I", "03",
	"%M", "04",
	"%S", "05",
	"%B", "January",
	"%b", "Jan",
	"%A", "Monday",
	"%a", "Mon",
	"%p", "PM",
	"%z", "-0700",
	"%Z", "MST",
	"%y", "06",
	"%%", "%",
}

func strftimeToLayout(format string) string {
	return strings.NewReplacer(strftimeReplacements...).Replace(format)
}
