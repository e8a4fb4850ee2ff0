package domain

import "time"

// CategoryUnknown is the sentinel category used whenever the model
// cannot (or declines to) pick a label from the vocabulary.
const CategoryUnknown = "unknown"

type Classification struct {
	TicketID     string    `json:"ticket_id"`
	Category     string    `json:"classification"`
	Summary      string    `json:"summary"`
	ClassifiedAt time.Time `json:"classified_at"`
}

func (c Classification) IsUnknown() bool {
	return c.Category == CategoryUnknown
}

// CategorySet is the vocabulary of valid classification labels for one
// Zendesk custom field, plus the time it was last fetched from the API.
type CategorySet struct {
	FieldID   string
	Values    []string
	FetchedAt time.Time
}

type TicketEvent struct {
	TicketID string `json:"ticket_id"`
	Subject  string `json:"ticket_subject"`
	Comment  string `json:"ticket_comment"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}
