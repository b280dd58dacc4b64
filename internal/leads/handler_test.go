package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/botdesk/internal/tenancy"
	"github.com/wolfman30/botdesk/pkg/logging"
)

func withBot(req *http.Request, botID string) *http.Request {
	return req.WithContext(tenancy.WithBotID(req.Context(), botID))
}

func TestCreateLead_Success(t *testing.T) {
	repo := NewInMemoryRepository()
	handler := NewHandler(repo, logging.Default())

	reqBody := CreateLeadRequest{
		Name:    "John Doe",
		Email:   "John@Example.com",
		Phone:   "+1234567890",
		Message: "Interested in a facial",
	}

	body, _ := json.Marshal(reqBody)
	req := withBot(httptest.NewRequest(http.MethodPost, "/v1/bots/bot-1/leads", bytes.NewReader(body)), "bot-1")
	w := httptest.NewRecorder()

	handler.CreateLead(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, w.Code)
	}

	var lead Lead
	if err := json.NewDecoder(w.Body).Decode(&lead); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if lead.Name != reqBody.Name {
		t.Errorf("expected name %s, got %s", reqBody.Name, lead.Name)
	}
	if lead.Email != "john@example.com" {
		t.Errorf("expected normalized email, got %s", lead.Email)
	}
	if lead.BotID != "bot-1" || lead.Source != SourceForm {
		t.Errorf("unexpected bot/source %s/%s", lead.BotID, lead.Source)
	}
}

func TestCreateLead_InvalidRequest(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), logging.Default())

	for name, body := range map[string]string{
		"missing name":    `{"email":"a@b.test"}`,
		"missing contact": `{"name":"John Doe"}`,
		"invalid json":    `{`,
	} {
		t.Run(name, func(t *testing.T) {
			req := withBot(httptest.NewRequest(http.MethodPost, "/v1/bots/bot-1/leads", strings.NewReader(body)), "bot-1")
			w := httptest.NewRecorder()
			handler.CreateLead(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestCreateLead_MissingBotContext(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), logging.Default())
	req := httptest.NewRequest(http.MethodPost, "/v1/bots/bot-1/leads", strings.NewReader(`{"name":"A","email":"a@b.test"}`))
	w := httptest.NewRecorder()
	handler.CreateLead(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

type failingRepository struct{}

func (failingRepository) Create(context.Context, *CreateLeadRequest) (*Lead, error) {
	return nil, errors.New("db down")
}

func (failingRepository) GetByID(context.Context, string, string) (*Lead, error) {
	return nil, errors.New("db down")
}

func (failingRepository) ListByBot(context.Context, string, ListFilter) ([]*Lead, error) {
	return nil, errors.New("db down")
}

func TestCreateLead_RepositoryError(t *testing.T) {
	handler := NewHandler(failingRepository{}, logging.Default())
	req := withBot(httptest.NewRequest(http.MethodPost, "/v1/bots/bot-1/leads", strings.NewReader(`{"name":"A","email":"a@b.test"}`)), "bot-1")
	w := httptest.NewRecorder()
	handler.CreateLead(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestListLeads(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		if _, err := repo.Create(ctx, &CreateLeadRequest{BotID: "bot-1", Name: name, Email: name + "@x.test"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.Create(ctx, &CreateLeadRequest{BotID: "bot-2", Name: "Z", Email: "z@x.test"}); err != nil {
		t.Fatal(err)
	}

	handler := NewHandler(repo, nil)
	r := chi.NewRouter()
	r.Get("/admin/bots/{botID}/leads", handler.ListLeads)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/bots/bot-1/leads?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListLeadsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || resp.Limit != 2 {
		t.Fatalf("unexpected page %+v", resp)
	}

	w = httptest.NewRecorder()
	chiFail := chi.NewRouter()
	chiFail.Get("/admin/bots/{botID}/leads", NewHandler(failingRepository{}, nil).ListLeads)
	chiFail.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/bots/bot-1/leads", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
