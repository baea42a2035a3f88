// Package calendar talks to the scheduling backend: a Microsoft 365 mailbox
// reached through the Graph REST API with app-only credentials.
package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var json = sonic.ConfigStd

const (
	DefaultBaseURL  = "https://graph.microsoft.com/v1.0"
	defaultAuthURL  = "https://login.microsoftonline.com"
	graphScope      = "https://graph.microsoft.com/.default"
	graphTimeLayout = "2006-01-02T15:04:05.9999999"
)

// ErrNotConfigured is returned by every operation of an Unconfigured backend.
var ErrNotConfigured = errors.New("calendar backend not configured")

// Event is an existing calendar entry.
type Event struct {
	Subject string
	Start   time.Time
	End     time.Time
}

// NewEvent describes an event to create.
type NewEvent struct {
	Subject  string
	BodyHTML string
	Location string
	Start    time.Time
	End      time.Time
}

// Mail is a single HTML message sent from the managed mailbox.
type Mail struct {
	To       string
	Subject  string
	BodyHTML string
}

// APIError is a non-2xx Graph response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph: HTTP %d", e.Status)
	}
	return fmt.Sprintf("graph: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// GraphConfig configures NewGraph.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string

	// Overrides for tests; empty uses the public endpoints.
	BaseURL string
	AuthURL string
}

// Graph is a minimal calendar/mail client scoped to one mailbox.
type Graph struct {
	baseURL string
	mailbox string
	http    *http.Client
}

// credentialSource fetches a brand new token on every call; TokenCache
// decides when that is necessary.
type credentialSource struct {
	cfg *clientcredentials.Config
}

func (s credentialSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.cfg.Token(ctx)
}

// NewGraph builds a client authenticating with the client-credentials flow.
func NewGraph(cfg GraphConfig) *Graph {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authURL, url.PathEscape(cfg.TenantID)),
		Scopes:       []string{graphScope},
	}
	tokens := NewTokenCache(credentialSource{cfg: cc}, DefaultRefreshMargin)

	return NewGraphWithClient(cfg.BaseURL, cfg.Mailbox, &http.Client{
		Timeout:   30 * time.Second,
		Transport: &oauth2.Transport{Source: tokens, Base: http.DefaultTransport},
	})
}

// NewGraphWithClient uses client as-is; it must attach credentials itself.
func NewGraphWithClient(baseURL, mailbox string, client *http.Client) *Graph {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Graph{baseURL: baseURL, mailbox: mailbox, http: client}
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphEvent struct {
	ID       string         `json:"id,omitempty"`
	Subject  string         `json:"subject"`
	Body     *graphBody     `json:"body,omitempty"`
	Start    graphDateTime  `json:"start"`
	End      graphDateTime  `json:"end"`
	Location *graphLocation `json:"location,omitempty"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type calendarViewPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListEvents returns the events overlapping [start, end).
func (g *Graph) ListEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$select", "start,end,subject")
	next := fmt.Sprintf("%s/users/%s/calendarView?%s", g.baseURL, url.PathEscape(g.mailbox), q.Encode())

	var events []Event
	for next != "" {
		var page calendarViewPage
		if err := g.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, ev := range page.Value {
			s, err := parseGraphTime(ev.Start)
			if err != nil {
				return nil, err
			}
			e, err := parseGraphTime(ev.End)
			if err != nil {
				return nil, err
			}
			events = append(events, Event{Subject: ev.Subject, Start: s, End: e})
		}
		next = page.NextLink
	}
	return events, nil
}

// CreateEvent books an event and returns its Graph id.
func (g *Graph) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	body := graphEvent{
		Subject: ev.Subject,
		Body:    &graphBody{ContentType: "HTML", Content: ev.BodyHTML},
		Start:   formatGraphTime(ev.Start),
		End:     formatGraphTime(ev.End),
	}
	if ev.Location != "" {
		body.Location = &graphLocation{DisplayName: ev.Location}
	}

	var created graphEvent
	endpoint := fmt.Sprintf("%s/users/%s/events", g.baseURL, url.PathEscape(g.mailbox))
	if err := g.do(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("graph: created event has no id")
	}
	return created.ID, nil
}

// SendMail sends m from the managed mailbox. An empty recipient means the
// mailbox itself.
func (g *Graph) SendMail(ctx context.Context, m Mail) error {
	to := m.To
	if to == "" {
		to = g.mailbox
	}
	payload := map[string]any{
		"message": map[string]any{
			"subject": m.Subject,
			"body":    graphBody{ContentType: "HTML", Content: m.BodyHTML},
			"toRecipients": []map[string]any{
				{"emailAddress": map[string]string{"address": to}},
			},
		},
		"saveToSentItems": true,
	}
	endpoint := fmt.Sprintf("%s/users/%s/sendMail", g.baseURL, url.PathEscape(g.mailbox))
	return g.do(ctx, http.MethodPost, endpoint, payload, nil)
}

func (g *Graph) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode graph request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb graphErrorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

func formatGraphTime(t time.Time) graphDateTime {
	return graphDateTime{DateTime: t.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
}

func parseGraphTime(v graphDateTime) (time.Time, error) {
	loc := time.UTC
	if v.TimeZone != "" && v.TimeZone != "UTC" {
		l, err := time.LoadLocation(v.TimeZone)
		if err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphTimeLayout, v.DateTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse graph time %q: %w", v.DateTime, err)
	}
	return t, nil
}

// Unconfigured stands in for Graph when credentials are missing. Every
// operation fails with ErrNotConfigured.
type Unconfigured struct {
	Missing []string
}

func (u Unconfigured) err() error {
	return fmt.Errorf("%w: missing %v", ErrNotConfigured, u.Missing)
}

func (u Unconfigured) ListEvents(context.Context, time.Time, time.Time) ([]Event, error) {
	return nil, u.err()
}

func (u Unconfigured) CreateEvent(context.Context, NewEvent) (string, error) {
	return "", u.err()
}

func (u Unconfigured) SendMail(context.Context, Mail) error {
	return u.err()
}
