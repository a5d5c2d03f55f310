package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"vocabremind/internal/reminder"
	"vocabremind/internal/reminder/service"
	"vocabremind/internal/storage"
	"vocabremind/internal/task/scheduler"
	logx "vocabremind/pkg/logx"
)

func clock() time.Time { return time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC) }

func newReminderRouter(t *testing.T) http.Handler {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	reg := scheduler.New(scheduler.Config{Enabled: true}, nil, nil, logx.Nop(), nil, scheduler.WithClock(clock))
	svc := service.New(st, reg, nil, logx.Nop(), service.WithClock(clock))

	r := chi.NewRouter()
	New(svc, logx.Nop()).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func payload(freq string) map[string]any {
	return map[string]any{
		"userId":      "u1",
		"deviceToken": "42",
		"startDate":   "01/01/2024",
		"endDate":     "03/01/2024",
		"frequency":   freq,
	}
}

type upsertBody struct {
	Message  string            `json:"message"`
	Reminder reminder.Reminder `json:"reminder"`
}

func TestCreateUpdateGetCancel(t *testing.T) {
	router := newReminderRouter(t)

	rec := do(t, router, http.MethodPost, "/reminder", payload("8:00 AM"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating reminder, got %d: %s", rec.Code, rec.Body)
	}
	var created upsertBody
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if created.Message != "Reminder created successfully" || created.Reminder.ID == "" {
		t.Fatalf("unexpected create response %+v", created)
	}
	if created.Reminder.Title != reminder.DefaultTitle {
		t.Fatalf("expected default title, got %q", created.Reminder.Title)
	}

	rec = do(t, router, http.MethodPost, "/reminder", payload("9:00 PM"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 updating reminder, got %d: %s", rec.Code, rec.Body)
	}
	var updated upsertBody
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode update response: %v", err)
	}
	if updated.Message != "Reminder updated successfully" || updated.Reminder.ID != created.Reminder.ID {
		t.Fatalf("unexpected update response %+v", updated)
	}

	rec = do(t, router, http.MethodGet, "/reminders/u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching reminder, got %d", rec.Code)
	}
	var got reminder.Reminder
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Frequency != "9:00 PM" || !got.IsActive {
		t.Fatalf("unexpected reminder %+v", got)
	}

	rec = do(t, router, http.MethodDelete, "/reminder/"+got.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 cancelling reminder, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, http.MethodDelete, "/reminder/"+got.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 cancelling twice, got %d", rec.Code)
	}
	assertError(t, rec, "No active job found for this reminder")

	rec = do(t, router, http.MethodGet, "/reminders/u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after cancel, got %d", rec.Code)
	}
}

func TestUpsertBadRequests(t *testing.T) {
	router := newReminderRouter(t)

	endBeforeStart := payload("8:00 AM")
	endBeforeStart["endDate"] = "31/12/2023"
	noToken := payload("8:00 AM")
	delete(noToken, "deviceToken")

	tests := []struct {
		name      string
		body      any
		wantError string
		wantField string
	}{
		{name: "malformed json", body: "{", wantError: "invalid JSON body"},
		{name: "end before start", body: endBeforeStart, wantError: reminder.MsgEndBeforeStart, wantField: "endDate"},
		{name: "bad frequency", body: payload("7:5 AM"), wantField: "frequency"},
		{name: "missing token", body: noToken, wantField: "deviceToken"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/reminder", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
			var resp struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if tc.wantError != "" && resp.Error != tc.wantError {
				t.Fatalf("error=%q want %q", resp.Error, tc.wantError)
			}
			if tc.wantField != "" {
				if _, ok := resp.Fields[tc.wantField]; !ok {
					t.Fatalf("fields=%v missing %s", resp.Fields, tc.wantField)
				}
			}
		})
	}
}

func TestCancelUnknownReminder(t *testing.T) {
	router := newReminderRouter(t)
	rec := do(t, router, http.MethodDelete, "/reminder/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	assertError(t, rec, "Reminder not found")
}

type failingService struct{}

func (failingService) Upsert(context.Context, reminder.Input) (reminder.Reminder, bool, error) {
	return reminder.Reminder{}, false, errors.New("db down")
}

func (failingService) ActiveForUser(context.Context, string) (reminder.Reminder, error) {
	return reminder.Reminder{}, errors.New("db down")
}

func (failingService) Cancel(context.Context, string) error { return storage.ErrConflict }

func TestServiceErrorsMapToStatus(t *testing.T) {
	r := chi.NewRouter()
	New(failingService{}, logx.Nop()).Register(r)

	if rec := do(t, r, http.MethodPost, "/reminder", payload("8:00 AM")); rec.Code != http.StatusInternalServerError {
		t.Fatalf("upsert: expected 500, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/reminders/u1", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("get: expected 500, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, "/reminder/x", nil); rec.Code != http.StatusConflict {
		t.Fatalf("delete: expected 409, got %d", rec.Code)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if resp.Error != want {
		t.Fatalf("error=%q want %q", resp.Error, want)
	}
}
