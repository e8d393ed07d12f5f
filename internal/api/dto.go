package api

import "github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"

// TrackRequest is the payload for POST /geo/track. Coordinates are pointers so
// that a zero latitude or longitude is distinguishable from a missing one.
type TrackRequest struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

// TrackResponse reports the steps derived from one report.
type TrackResponse struct {
	StepsAdded int `json:"stepsAdded"`
	TotalSteps int `json:"totalSteps"`
}

// ProgressResponse is today's ledger total.
type ProgressResponse struct {
	Steps int    `json:"steps"`
	Date  string `json:"date"`
}

// CreateAlertRequest is the payload for POST /alerts. Priority defaults to MEDIUM.
type CreateAlertRequest struct {
	Title         string  `json:"title" validate:"required,max=200"`
	Message       string  `json:"message" validate:"required,max=4000"`
	Priority      string  `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DurationHours float64 `json:"durationHours" validate:"gt=0,lte=8760"`
}

// ListAlertsResponse packages a page of the caller's inbox.
type ListAlertsResponse struct {
	Items      []events.Alert `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// ErrorResponse is the body of every non-2xx response. RetryUnsafe warns that
// resubmitting the request may double count.
type ErrorResponse struct {
	Type        string `json:"type"`
	Detail      string `json:"detail"`
	RetryUnsafe bool   `json:"retry_unsafe,omitempty"`
}
