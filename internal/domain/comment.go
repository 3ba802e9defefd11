package domain

import "time"

// Comment is a message posted on a ticket thread by the applicant or an assignee.
type Comment struct {
	ID          string
	TicketID    string
	UserID      string
	UserDisplay string
	Body        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
