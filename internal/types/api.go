package types

import "time"

type CreateSessionResponse struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	QRURL      string    `json:"qrUrl"`
	QR         string    `json:"qr,omitempty"`
	DeadlineMs int64     `json:"deadlineMs"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type ConnectResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

type StatusResponse struct {
	Status           string   `json:"status"`
	PartnerConnected bool     `json:"partnerConnected"`
	RemainingMs      int64    `json:"remainingMs"`
	NewImageIDs      []string `json:"newImageIds"`
}

type UploadResponse struct {
	ImageID string `json:"imageId"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
