package domain

import "time"

// Session is one visitor conversation thread scoped to a business.
//
// A session is uniquely identified within a business by (businessID,
// customerEmail) once the email is known, else by (businessID, sid). The sid
// is an opaque client-generated or server-generated token used before an
// email is captured. At most one open session per sid per business.
type Session struct {
	ID              string
	SID             string
	BusinessID      string
	CustomerEmail   *string
	AssignedAgentID *string
	IsResolved      bool
	Notes           string
	Segments        []string
	Country         *string
	City            *string
	Browser         *string
	OS              *string
	Rating          *int16
	LastActive      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
