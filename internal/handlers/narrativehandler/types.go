package narrativehandler

type appendEventRequest struct {
	EventType string         `json:"event_type" validate:"required"`
	AppSource string         `json:"app_source" validate:"required"`
	EventData map[string]any `json:"event_data"`
	Metadata  map[string]any `json:"metadata"`
}

type appendEventResponse struct {
	EventID string `json:"event_id"`
}
