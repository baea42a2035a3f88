package calendar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphListEventsFollowsPagesAndParsesUTC(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			assert.Equal(t, "/users/office@example.com/calendarView", r.URL.Path)
			assert.Equal(t, "2026-02-01T05:00:00Z", r.URL.Query().Get("startDateTime"))
			assert.Equal(t, "2026-02-02T05:00:00Z", r.URL.Query().Get("endDateTime"))
			assert.Equal(t, "start,end,subject", r.URL.Query().Get("$select"))
			assert.Equal(t, `outlook.timezone="UTC"`, r.Header.Get("Prefer"))
			_, _ = io.WriteString(w, `{"value":[{"subject":"Kitchen","start":{"dateTime":"2026-02-01T14:00:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2026-02-01T15:00:00.0000000","timeZone":"UTC"}}],
				"@odata.nextLink":"`+srv.URL+`/users/office@example.com/calendarView?page=2"}`)
		case "2":
			_, _ = io.WriteString(w, `{"value":[{"subject":"Bath","start":{"dateTime":"2026-02-01T18:30:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2026-02-01T19:00:00.0000000","timeZone":"UTC"}}]}`)
		}
	}))
	defer srv.Close()

	g := NewGraphWithClient(srv.URL, "office@example.com", srv.Client())
	start := time.Date(2026, 2, 1, 5, 0, 0, 0, time.UTC)

	events, err := g.ListEvents(context.Background(), start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Kitchen", events[0].Subject)
	assert.Equal(t, time.Date(2026, 2, 1, 14, 0, 0, 0, time.UTC), events[0].Start)
	assert.Equal(t, time.Date(2026, 2, 1, 19, 0, 0, 0, time.UTC), events[1].End)
}

func TestGraphCreateEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/office@example.com/events", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"AAMkAG"}`)
	}))
	defer srv.Close()

	g := NewGraphWithClient(srv.URL, "office@example.com", srv.Client())
	start := time.Date(2026, 2, 1, 19, 0, 0, 0, time.UTC)

	id, err := g.CreateEvent(context.Background(), NewEvent{
		Subject:  "Appointment: A",
		BodyHTML: "<b>Customer:</b> A",
		Location: "B",
		Start:    start,
		End:      start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "AAMkAG", id)
	assert.Equal(t, "Appointment: A", got["subject"])
	assert.Equal(t, map[string]any{"dateTime": "2026-02-01T19:00:00", "timeZone": "UTC"}, got["start"])
	assert.Equal(t, map[string]any{"displayName": "B"}, got["location"])
}

func TestGraphErrorsBecomeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":"ErrorAccessDenied","message":"Access is denied."}}`)
	}))
	defer srv.Close()

	g := NewGraphWithClient(srv.URL, "office@example.com", srv.Client())
	err := g.SendMail(context.Background(), Mail{Subject: "hi"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "ErrorAccessDenied", apiErr.Code)
}

func TestGraphAuthenticatesWithClientCredentials(t *testing.T) {
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tenant/oauth2/v2.0/token":
			tokenCalls++
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"abc","token_type":"Bearer","expires_in":3600}`)
		case "/users/office@example.com/sendMail":
			assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusAccepted)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	g := NewGraph(GraphConfig{
		TenantID:     "tenant",
		ClientID:     "id",
		ClientSecret: "secret",
		Mailbox:      "office@example.com",
		BaseURL:      srv.URL,
		AuthURL:      srv.URL,
	})

	require.NoError(t, g.SendMail(context.Background(), Mail{Subject: "one"}))
	require.NoError(t, g.SendMail(context.Background(), Mail{Subject: "two"}))
	assert.Equal(t, 1, tokenCalls)
}

func TestUnconfigured(t *testing.T) {
	u := Unconfigured{Missing: []string{"MS_CLIENT_ID"}}
	_, err := u.CreateEvent(context.Background(), NewEvent{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorContains(t, err, "MS_CLIENT_ID")
}
