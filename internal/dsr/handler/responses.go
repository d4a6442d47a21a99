package handler

import (
	"time"

	"consentry/internal/disclosure"
	"consentry/internal/dsr/models"
)

// RequestResponse is the wire shape of a data subject request.
type RequestResponse struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	SubjectID       string         `json:"subject_id"`
	RequesterID     string         `json:"requester_id"`
	Status          string         `json:"status"`
	Notes           string         `json:"notes,omitempty"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	DueDate         time.Time      `json:"due_date"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Attempts        int            `json:"attempts"`
	Result          *models.Result `json:"result,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

func toRequestResponse(req *models.Request) RequestResponse {
	return RequestResponse{
		ID:              string(req.ID),
		Type:            string(req.Type),
		SubjectID:       string(req.SubjectID),
		RequesterID:     string(req.RequesterID),
		Status:          string(req.Status),
		Notes:           req.Notes,
		SubmittedAt:     req.SubmittedAt,
		DueDate:         req.DueDate,
		CompletedAt:     req.CompletedAt,
		Attempts:        req.Attempts,
		Result:          req.Result,
		RejectionReason: req.RejectionReason,
	}
}

func toRequestResponses(reqs []*models.Request) []RequestResponse {
	out := make([]RequestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequestResponse(req))
	}
	return out
}

// ListResponse wraps a set of data subject requests.
type ListResponse struct {
	Requests []RequestResponse `json:"requests"`
}

// DisclosureResponse is one entry in the subject's disclosure ledger.
type DisclosureResponse struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	Recipient   string    `json:"recipient"`
	Purpose     string    `json:"purpose"`
	Categories  []string  `json:"categories"`
	DisclosedAt time.Time `json:"disclosed_at"`
}

func toDisclosureResponses(recs []disclosure.Record) []DisclosureResponse {
	out := make([]DisclosureResponse, 0, len(recs))
	for _, rec := range recs {
		cats := make([]string, 0, len(rec.Categories))
		for _, c := range rec.Categories {
			cats = append(cats, string(c))
		}
		out = append(out, DisclosureResponse{
			ID:          string(rec.ID),
			SubjectID:   string(rec.SubjectID),
			Recipient:   string(rec.Recipient),
			Purpose:     rec.Purpose,
			Categories:  cats,
			DisclosedAt: rec.DisclosedAt,
		})
	}
	return out
}

// DisclosureListResponse wraps the disclosure ledger for a subject.
type DisclosureListResponse struct {
	Disclosures []DisclosureResponse `json:"disclosures"`
}
