// ABOUTME: JSON resource shapes for the calendar and report endpoints.
// ABOUTME: All-day events use "date", timed events use "dateTime".

package calendar

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

type eventResource struct {
	ID          string    `json:"id,omitempty"`
	CalendarID  string    `json:"calendarId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	AllDay      bool      `json:"allDay"`
	Updated     string    `json:"updated,omitempty"`
}

type eventList struct {
	Items         []eventResource `json:"items"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}
