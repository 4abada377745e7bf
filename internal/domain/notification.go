package domain

import "time"

const NotificationExpensesCreated = "expenses-created"

// MaxNotificationItems caps how many created items a notification displays.
const MaxNotificationItems = 5

// PendingNotification is shown once by the UI and then discarded. Never persisted.
type PendingNotification struct {
	Kind         string  `json:"kind"`
	Count        int     `json:"count"`
	Total        float64 `json:"total"`
	Currency     string  `json:"currency"`
	Items        []Item  `json:"items"`
	EarliestDate string  `json:"earliestDate"`
}

// Navigation asks the UI to move to Path once Delay has elapsed.
type Navigation struct {
	Path  string        `json:"path"`
	Delay time.Duration `json:"-"`
}
