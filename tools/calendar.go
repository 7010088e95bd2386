package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Calendar exposes the user's Google Calendar as a capability provider.
// The OAuth handshake runs out-of-band (the transport's /auth command); an
// unauthenticated calendar answers tool calls with an instructional string
// instead of failing the conversation.
type Calendar struct {
	logger    *slog.Logger
	config    *oauth2.Config
	tokenFile string
	defs      []Definition

	mu      sync.RWMutex
	service *calendar.Service
}

// NewCalendar creates a calendar provider with OAuth credentials.
func NewCalendar(logger *slog.Logger, clientID, clientSecret, redirectURL, tokenFile string) *Calendar {
	return &Calendar{
		logger: logger,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		tokenFile: tokenFile,
	}
}

func (c *Calendar) Name() string {
	return "calendar"
}

// Init publishes the tool definitions and, when a cached token exists,
// brings up the calendar service. Missing credentials or tokens are not
// errors: the provider stays registered and reports its state at call time.
func (c *Calendar) Init(ctx context.Context) error {
	c.defs = []Definition{
		{
			Name:        "get_calendar_events",
			Description: "Get upcoming events from the user's Google Calendar. Can specify how many events to retrieve (default 10) and how many days ahead to look (default 7).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of events to return (default 10, max 50)",
					},
					"days_ahead": map[string]any{
						"type":        "integer",
						"description": "How many days ahead to look for events (default 7)",
					},
				},
				"required": []string{},
			},
		},
	}

	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		c.logger.Info("calendar provider registered without credentials")
		return nil
	}

	token, err := c.tokenFromFile()
	if err != nil {
		c.logger.Info("calendar provider awaiting authentication")
		return nil
	}
	return c.connect(ctx, token)
}

func (c *Calendar) Definitions() []Definition {
	return c.defs
}

// AuthURL returns the URL the user must visit to authorize calendar access,
// or empty if the provider is already authenticated.
func (c *Calendar) AuthURL() (string, error) {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return "", fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}

	c.mu.RLock()
	connected := c.service != nil
	c.mu.RUnlock()
	if connected {
		return "", nil
	}
	return c.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline), nil
}

// CompleteAuth finishes the OAuth flow with the authorization code.
func (c *Calendar) CompleteAuth(ctx context.Context, authCode string) error {
	token, err := c.config.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("exchanging auth code: %w", err)
	}
	if err := c.saveToken(token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return c.connect(ctx, token)
}

func (c *Calendar) connect(ctx context.Context, token *oauth2.Token) error {
	client := c.config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("creating calendar service: %w", err)
	}

	c.mu.Lock()
	c.service = service
	c.mu.Unlock()
	c.logger.Info("calendar provider authenticated")
	return nil
}

func (c *Calendar) Call(ctx context.Context, tool string, args map[string]any) string {
	if tool != "get_calendar_events" {
		return "unsupported tool " + tool
	}

	c.mu.RLock()
	service := c.service
	c.mu.RUnlock()
	if service == nil {
		return "Calendar not authenticated. Please use /auth to connect your Google Calendar."
	}

	maxResults := int64(10)
	if v, ok := args["max_results"].(float64); ok {
		maxResults = min(int64(v), 50)
	}
	daysAhead := 7
	if v, ok := args["days_ahead"].(float64); ok {
		daysAhead = int(v)
	}

	now := time.Now()
	events, err := service.Events.List("primary").
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.AddDate(0, 0, daysAhead).Format(time.RFC3339)).
		MaxResults(maxResults).
		OrderBy("startTime").
		Do()
	if err != nil {
		c.logger.Warn("calendar lookup failed", "error", err)
		return fmt.Sprintf("retrieving events failed: %v", err)
	}

	if len(events.Items) == 0 {
		return "No upcoming events found."
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Found %d upcoming events:\n\n", len(events.Items))
	for _, item := range events.Items {
		start := item.Start.DateTime
		if start == "" {
			start = item.Start.Date // All-day event
		}

		timeStr := start
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			timeStr = t.Format("Mon Jan 2, 3:04 PM")
		}

		fmt.Fprintf(&result, "• %s - %s\n", timeStr, item.Summary)
		if item.Location != "" {
			fmt.Fprintf(&result, "  at %s\n", item.Location)
		}
	}
	return result.String()
}

// Close drops the service handle so no further calls go out after teardown.
func (c *Calendar) Close() error {
	c.mu.Lock()
	c.service = nil
	c.mu.Unlock()
	return nil
}

func (c *Calendar) tokenFromFile() (*oauth2.Token, error) {
	f, err := os.Open(c.tokenFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

func (c *Calendar) saveToken(token *oauth2.Token) error {
	f, err := os.Create(c.tokenFile)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
