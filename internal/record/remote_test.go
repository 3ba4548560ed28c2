package record

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stuhub/experience-system/internal/middleware"
	"github.com/stuhub/experience-system/internal/model"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFetchOrCreate_ExistingRecord(t *testing.T) {
	draft := model.NewDraft(1)
	draft.ID = "rec-1"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/user/experiences" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if c, err := r.Cookie(middleware.AuthCookieName); err != nil || c.Value != "token" {
			t.Fatalf("auth cookie not sent")
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode([]*model.ExperienceRecord{draft}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	store := NewRemoteStore(ts.URL, "token")

	rec, err := store.FetchOrCreate(testCtx(t), 1)
	if err != nil {
		t.Fatalf("FetchOrCreate error: %v", err)
	}
	if rec.ID != "rec-1" {
		t.Fatalf("record id = %s, want rec-1", rec.ID)
	}
}

func TestFetchOrCreate_CreatesWhenMissing(t *testing.T) {
	var createCalled bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]*model.ExperienceRecord{})
		case http.MethodPost:
			createCalled = true
			draft := model.NewDraft(1)
			draft.ID = "rec-new"
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(draft)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer ts.Close()

	store := NewRemoteStore(ts.URL, "token")

	rec, err := store.FetchOrCreate(testCtx(t), 1)
	if err != nil {
		t.Fatalf("FetchOrCreate error: %v", err)
	}
	if !createCalled {
		t.Fatalf("create request was not issued")
	}
	if rec.ID != "rec-new" || rec.Status != model.StatusDraft {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.CompletedSteps) != 0 {
		t.Fatalf("fresh record must have no completed steps: %v", rec.CompletedSteps)
	}
}

func TestUpdate_SubmittedConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	}))
	defer ts.Close()

	store := NewRemoteStore(ts.URL, "token")

	_, err := store.Update(testCtx(t), "rec-1", model.Patch{})
	if err == nil {
		t.Fatalf("expected error for submitted record")
	}
	if !errors.Is(err, ErrSubmitted) {
		t.Fatalf("expected ErrSubmitted, got %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindConflict)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusBadRequest, KindValidation},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
	}

	for _, tt := range tests {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		store := NewRemoteStore(ts.URL, "token")
		_, err := store.Update(testCtx(t), "rec-1", model.Patch{})
		ts.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if KindOf(err) != tt.want {
			t.Fatalf("status %d: kind = %s, want %s", tt.status, KindOf(err), tt.want)
		}
	}
}

func TestSubmit_SendsActionMarker(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["action"] != "submit" {
			t.Fatalf("action = %v, want submit", body["action"])
		}

		rec := model.NewDraft(1)
		rec.ID = "rec-1"
		rec.Status = model.StatusSubmitted
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec)
	}))
	defer ts.Close()

	store := NewRemoteStore(ts.URL, "token")

	rec, err := store.Submit(testCtx(t), "rec-1", model.Patch{BasicInfo: model.Section{"name": "Alice"}})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if rec.Status != model.StatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", rec.Status)
	}
}

func TestDelete_TransportError(t *testing.T) {
	store := NewRemoteStore("http://127.0.0.1:0", "token")

	err := store.Delete(testCtx(t), 1)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if KindOf(err) != KindServer {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindServer)
	}
}
