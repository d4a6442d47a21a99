package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentry/internal/disclosure"
	"consentry/internal/dsr/models"
	"consentry/internal/dsr/service"
	"consentry/internal/platform/middleware"
	id "consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

type stubService struct {
	submit      func(ctx context.Context, in service.SubmitInput) (*models.Request, error)
	withdraw    func(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error)
	get         func(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error)
	download    func(ctx context.Context, token string) ([]byte, string, error)
	disclosures func(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) ([]disclosure.Record, error)
}

func (s *stubService) Submit(ctx context.Context, in service.SubmitInput) (*models.Request, error) {
	return s.submit(ctx, in)
}

func (s *stubService) Withdraw(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error) {
	return s.withdraw(ctx, requestID, actor)
}

func (s *stubService) Get(ctx context.Context, requestID id.RequestID, actor id.ActorID) (*models.Request, error) {
	return s.get(ctx, requestID, actor)
}

func (s *stubService) ListBySubject(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) ([]*models.Request, error) {
	return nil, nil
}

func (s *stubService) Disclosures(ctx context.Context, subjectID id.SubjectID, actor id.ActorID) ([]disclosure.Record, error) {
	return s.disclosures(ctx, subjectID, actor)
}

func (s *stubService) Download(ctx context.Context, token string) ([]byte, string, error) {
	return s.download(ctx, token)
}

func newTestRouter(svc Service) http.Handler {
	h := New(svc, slog.Default(), nil)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, target, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if actor != "" {
		req = req.WithContext(middleware.WithActor(req.Context(), id.ActorID(actor)))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitReturnsRequestWithDueDate(t *testing.T) {
	submitted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubService{
		submit: func(_ context.Context, in service.SubmitInput) (*models.Request, error) {
			assert.Equal(t, models.TypeAccess, in.Type)
			assert.Equal(t, id.SubjectID("student-1"), in.SubjectID)
			assert.Equal(t, id.ActorID("student-1"), in.RequesterID)
			return &models.Request{
				ID:          "req-1",
				Type:        in.Type,
				SubjectID:   in.SubjectID,
				RequesterID: in.RequesterID,
				Status:      models.StatusPending,
				SubmittedAt: submitted,
				DueDate:     submitted.Add(30 * 24 * time.Hour),
			}, nil
		},
	}
	router := newTestRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/dsr", "student-1", SubmitRequest{
		Type:      "Access",
		SubjectID: " student-1 ",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var resp RequestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, submitted.Add(30*24*time.Hour), resp.DueDate)
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := doJSON(t, router, http.MethodPost, "/dsr", "student-1", SubmitRequest{
		Type:      "deletion",
		SubjectID: "student-1",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRequiresActor(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := doJSON(t, router, http.MethodPost, "/dsr", "", SubmitRequest{
		Type:      "access",
		SubjectID: "student-1",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWithdrawInvalidStateMapsTo409(t *testing.T) {
	svc := &stubService{
		withdraw: func(_ context.Context, requestID id.RequestID, _ id.ActorID) (*models.Request, error) {
			assert.Equal(t, id.RequestID("req-1"), requestID)
			return nil, dErrors.New(dErrors.CodeInvalidState, "request is already being processed")
		},
	}
	router := newTestRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/dsr/req-1/withdraw", "student-1", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDownloadStreamsDecryptedExport(t *testing.T) {
	payload := []byte(`{"subject_id":"student-1"}`)
	svc := &stubService{
		download: func(_ context.Context, token string) ([]byte, string, error) {
			assert.Equal(t, "tok123", token)
			return payload, "application/json", nil
		},
	}
	router := newTestRouter(svc)

	w := doJSON(t, router, http.MethodGet, "/exports/tok123", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, payload, w.Body.Bytes())
}

func TestDownloadUnknownTokenMapsTo404(t *testing.T) {
	svc := &stubService{
		download: func(_ context.Context, _ string) ([]byte, string, error) {
			return nil, "", dErrors.New(dErrors.CodeNotFound, "export not found")
		},
	}
	router := newTestRouter(svc)

	w := doJSON(t, router, http.MethodGet, "/exports/expired", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDisclosuresListsLedger(t *testing.T) {
	svc := &stubService{
		disclosures: func(_ context.Context, subjectID id.SubjectID, _ id.ActorID) ([]disclosure.Record, error) {
			assert.Equal(t, id.SubjectID("student-1"), subjectID)
			return []disclosure.Record{{
				ID:          "d-1",
				SubjectID:   subjectID,
				Recipient:   "student-1",
				Purpose:     "dsr_access",
				DisclosedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			}}, nil
		},
	}
	router := newTestRouter(svc)

	w := doJSON(t, router, http.MethodGet, "/disclosures?subject_id=student-1", "student-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp DisclosureListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Disclosures, 1)
	assert.Equal(t, "dsr_access", resp.Disclosures[0].Purpose)
}
