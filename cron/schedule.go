package cron

import (
	"fmt"
	"strconv"
	"strings"
)

// decodeField parses one whitespace-delimited schedule field: "*", "n",
// "n-n", or either form with a trailing "/step".
func decodeField(tok string, offset int) (Field, error) {
	var f Field

	rangePart, stepPart, hasStep := strings.Cut(tok, "/")

	if rangePart == "*" {
		f.RngStart = WildcardStart
	} else {
		startStr, endStr, hasRange := strings.Cut(rangePart, "-")
		start, err := strconv.Atoi(startStr)
		if err != nil {
			return Field{}, fmt.Errorf("cron: invalid field %q: %w", tok, err)
		}
		f.RngStart = uint8(start - offset)

		if hasRange {
			end, err := strconv.Atoi(endStr)
			if err != nil {
				return Field{}, fmt.Errorf("cron: invalid field %q: %w", tok, err)
			}
			f.RngEnd = uint8(end - offset)
			if f.RngEnd < f.RngStart {
				return Field{}, fmt.Errorf("cron: invalid field %q: range end before start", tok)
			}
		}
	}

	if hasStep {
		step, err := strconv.Atoi(stepPart)
		if err != nil {
			return Field{}, fmt.Errorf("cron: invalid step in %q: %w", tok, err)
		}
		f.Step = uint8(step)
	}

	return f, nil
}

// DecodeSchedule parses a five-field crontab-style schedule string:
// "minute hour day-of-month month day-of-week". Day-of-month and month are
// one-based in the string and converted to the zero-based TimeSpec form.
func DecodeSchedule(schedule string) (TimeSpec, error) {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return TimeSpec{}, fmt.Errorf("cron: schedule must have 5 fields, got %d", len(fields))
	}

	var spec TimeSpec
	var err error

	if spec.Minute, err = decodeField(fields[0], 0); err != nil {
		return TimeSpec{}, err
	}
	if spec.Hour, err = decodeField(fields[1], 0); err != nil {
		return TimeSpec{}, err
	}
	if spec.DayOfMonth, err = decodeField(fields[2], 1); err != nil {
		return TimeSpec{}, err
	}
	if spec.Month, err = decodeField(fields[3], 1); err != nil {
		return TimeSpec{}, err
	}
	if spec.DayOfWeek, err = decodeField(fields[4], 0); err != nil {
		return TimeSpec{}, err
	}

	return spec, nil
}
