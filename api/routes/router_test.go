package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/brunamourao/usermail-backend/internal/users"
	"github.com/brunamourao/usermail-backend/pkg/config"
	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/logger"
)

type stubUserService struct {
	dto *users.UserDTO
}

func (s *stubUserService) CreateAndNotify(ctx context.Context, req users.CreateUserRequest) (*users.UserDTO, error) {
	return s.dto, nil
}

func (s *stubUserService) GetByID(ctx context.Context, id uuid.UUID) (*users.UserDTO, error) {
	return s.dto, nil
}

func (s *stubUserService) List(ctx context.Context, limit, offset int) ([]users.UserDTO, error) {
	if s.dto == nil {
		return nil, nil
	}
	return []users.UserDTO{*s.dto}, nil
}

type stubDLQReader struct {
	entries []models.OutboxDLQ
}

func (s *stubDLQReader) List(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	return s.entries, nil
}

func (s *stubDLQReader) FindByMessageID(ctx context.Context, messageID uuid.UUID) (*models.OutboxDLQ, error) {
	for i := range s.entries {
		if s.entries[i].MessageID == messageID {
			return &s.entries[i], nil
		}
	}
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	logg := logger.New(logger.Options{ServiceName: "router-test"})
	svc := &stubUserService{dto: &users.UserDTO{ID: uuid.New(), Name: "Alice", Email: "alice@example.com"}}
	dlq := &stubDLQReader{entries: []models.OutboxDLQ{{ID: uuid.New(), MessageID: uuid.New()}}}
	return NewRouter(cfg, logg, nil, nil, nil, svc, dlq)
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Usermail-Env") != "test" {
		t.Fatal("expected env header set")
	}
}

func TestRouterRoutesUserEndpoints(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"name": "Alice", "email": "alice@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/users/"+uuid.NewString(), nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
}

func TestRouterRoutesDLQEndpoints(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/dlq", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
