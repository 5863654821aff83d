package tariff

import (
	"fmt"
	"time"
)

// SlotsPerHour is the number of half-hour slots the time-of-use table holds.
const SlotsPerHour = 2

// HourSlots holds the period of the top-of-hour and half-hour slot.
type HourSlots [SlotsPerHour]RatePeriod

// TimeOfUseTable maps season and hour of day to the rate period of each
// half-hour slot.
type TimeOfUseTable struct {
	slots map[Season]map[int]HourSlots
}

// NewTimeOfUseTable validates and copies a season/hour table. Hours that are
// absent stay absent; looking them up is a configuration error.
func NewTimeOfUseTable(table map[Season]map[int]HourSlots) (TimeOfUseTable, error) {
	out := TimeOfUseTable{slots: make(map[Season]map[int]HourSlots, len(table))}
	for season, hours := range table {
		if !season.IsValid() {
			return TimeOfUseTable{}, configErr("time_of_use", "unknown season %q", season)
		}
		copied := make(map[int]HourSlots, len(hours))
		for hour, slots := range hours {
			if hour < 0 || hour > 23 {
				return TimeOfUseTable{}, configErr(fmt.Sprintf("time_of_use.%s", season), "hour %d out of range", hour)
			}
			for i, p := range slots {
				if !p.IsValid() {
					return TimeOfUseTable{}, configErr(fmt.Sprintf("time_of_use.%s.%d[%d]", season, hour, i), "unknown rate period %q", p)
				}
			}
			copied[hour] = slots
		}
		out.slots[season] = copied
	}
	return out, nil
}

// UniformTimeOfUse returns a table mapping every slot of both seasons to p.
func UniformTimeOfUse(p RatePeriod) TimeOfUseTable {
	table := TimeOfUseTable{slots: make(map[Season]map[int]HourSlots, 2)}
	for _, season := range Seasons() {
		hours := make(map[int]HourSlots, 24)
		for h := 0; h < 24; h++ {
			hours[h] = HourSlots{p, p}
		}
		table.slots[season] = hours
	}
	return table
}

// SlotIndex returns 0 for minutes 0-29 and 1 for minutes 30-59.
func SlotIndex(minute int) int {
	if minute < 30 {
		return 0
	}
	return 1
}

// Lookup returns the rate period for the hour and minute of t in season.
func (t TimeOfUseTable) Lookup(season Season, at time.Time) (RatePeriod, error) {
	hours, ok := t.slots[season]
	if !ok {
		return "", configErr(fmt.Sprintf("time_of_use.%s", season), "no table for season")
	}
	slots, ok := hours[at.Hour()]
	if !ok {
		return "", configErr(fmt.Sprintf("time_of_use.%s.%d", season, at.Hour()), "no rate period for hour")
	}
	return slots[SlotIndex(at.Minute())], nil
}

// Hours returns the configured hours for a season.
func (t TimeOfUseTable) Hours(season Season) map[int]HourSlots {
	hours := t.slots[season]
	out := make(map[int]HourSlots, len(hours))
	for h, s := range hours {
		out[h] = s
	}
	return out
}
