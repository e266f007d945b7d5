package types

// DailyCommentStats aggregates comment activity for one calendar day.
// Counts are encoded as strings on the wire.
type DailyCommentStats struct {
	// Date is the UTC day in YYYY-MM-DD form.
	Date string `json:"date"`

	// Created is the number of comments stored that day.
	Created int `json:"created,string"`

	// Blocked is how many of those comments are currently blocked.
	Blocked int `json:"blocked,string"`
}
