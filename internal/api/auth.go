package api

import "time"

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RecordEnvelope wraps a single record for per-entity create and update calls.
type RecordEnvelope struct {
	Record Record `json:"record"`
}

// ErrorBody is the JSON error payload of the HTTP API.
type ErrorBody struct {
	Error string `json:"error"`
}

// MutationRequest is the body of the per-entity create, update and delete
// calls on the gRPC transport; HTTP carries Entity and ID in the path.
type MutationRequest struct {
	Entity Entity `json:"entity"`
	ID     int64  `json:"id,omitempty"`
	Record Record `json:"record,omitempty"`
}

type PingResponse struct {
	Status string `json:"status"`
}

// PDFLink is a short-lived download address for a paper's PDF.
type PDFLink struct {
	URL string `json:"url"`
}

// PDFUpload is a short-lived address for uploading a paper's PDF, and the
// storage key the paper now points at.
type PDFUpload struct {
	URL string `json:"url"`
	Key string `json:"key"`
}
