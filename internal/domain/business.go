package domain

import "time"

// Business is the tenant that purchased live-chat support. All data is scoped
// to a business; the APIKey is the credential the widget script presents.
type Business struct {
	ID                   string
	Name                 string
	APIKey               string
	WidgetWelcomeMessage *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
