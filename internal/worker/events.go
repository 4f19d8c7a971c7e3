package worker

import "encoding/json"

// JobSubmission is the body of a jobs.submit message.
type JobSubmission struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}
