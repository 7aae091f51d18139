package notify

import "errors"

var (
	// ErrNotificationNotFound indicates no open notification has the given ID.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrActionNotFound indicates the notification has no action with the given ID.
	ErrActionNotFound = errors.New("notification action not found")

	// ErrEmptyTitle indicates a notification was posted without a title.
	ErrEmptyTitle = errors.New("notification title cannot be empty")
)
