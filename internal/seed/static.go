// ABOUTME: Static fallback schedule when OpenAI is not available.
// ABOUTME: A repeating job-site week with overnight work and all-day closures.

package seed

import (
	"fmt"
	"time"

	"github.com/2389/fieldops/internal/tzclock"
)

type dailyTemplate struct {
	title, description, location string
	startHour, startMin          int
	// minutes after start; may cross midnight
	duration int
}

var weekdayTemplates = [][]dailyTemplate{
	{
		{"Crew dispatch", "Assign crews and vehicles for the day", "Yard", 6, 30, 60},
		{"Rebar delivery", "Two flatbeds for level 3 deck", "Gate B", 9, 0, 90},
		{"Overnight pour", "Level 3 deck pour, pump truck on site", "Tower A", 22, 0, 240},
	},
	{
		{"Safety briefing", "Weekly toolbox talk", "Site office", 7, 0, 30},
		{"Fire inspection", "Sprinkler rough-in, floors 1-2", "Tower A", 10, 0, 120},
		{"Night paving", "Access road resurfacing", "North access road", 23, 0, 240},
	},
	{
		{"Crew dispatch", "Assign crews and vehicles for the day", "Yard", 6, 30, 60},
		{"Crane inspection", "Annual tower crane certification", "Crane pad", 8, 0, 180},
		{"Owner walkthrough", "Monthly progress walk", "Tower A", 14, 0, 90},
	},
	{
		{"Electrical inspection", "Panel rough-in sign-off", "Tower B", 9, 0, 120},
		{"Drywall delivery", "Boom truck to level 2", "Gate A", 13, 0, 60},
	},
	{
		{"Crew dispatch", "Assign crews and vehicles for the day", "Yard", 6, 30, 60},
		{"Concrete testing", "Cylinder breaks for the level 3 pour", "Lab trailer", 11, 0, 45},
		{"Generator maintenance", "Swap temporary power generator", "Yard", 21, 30, 180},
	},
}

var allDayTemplates = []struct {
	offset int
	days   int
	item   Item
}{
	{offset: 1, days: 1, item: Item{Title: "Road closure", Description: "Lane closure permit for crane mobilization", Location: "Main St"}},
	{offset: 4, days: 2, item: Item{Title: "Site shutdown", Description: "Utility tie-in, no access", Location: "Entire site"}},
}

// staticSchedule lays the templates out over days local days from base.
func staticSchedule(base tzclock.Date, days int) []Item {
	var items []Item
	for i := 0; i < days; i++ {
		d := tzclock.AddCalendarDays(base, i)
		for _, tpl := range weekdayTemplates[i%len(weekdayTemplates)] {
			start := tzclock.DateLabel(d).Add(timeOfDay(tpl.startHour, tpl.startMin))
			end := start.Add(timeOfDay(0, tpl.duration))
			items = append(items, Item{
				Title:       tpl.title,
				Description: tpl.description,
				Location:    tpl.location,
				Start:       start.Format(itemLayout),
				End:         end.Format(itemLayout),
			})
		}
	}
	for _, tpl := range allDayTemplates {
		if tpl.offset >= days {
			continue
		}
		it := tpl.item
		it.AllDay = true
		it.Date = tzclock.AddCalendarDays(base, tpl.offset).String()
		it.Days = tpl.days
		items = append(items, it)
	}
	return items
}

const itemLayout = "2006-01-02 15:04"

func timeOfDay(hours, minutes int) time.Duration {
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
}

func (it Item) String() string {
	if it.AllDay {
		return fmt.Sprintf("%s (all day %s x%d)", it.Title, it.Date, it.Days)
	}
	return fmt.Sprintf("%s (%s - %s)", it.Title, it.Start, it.End)
}
