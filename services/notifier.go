package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shuvam-kayal/Devember-CollabQuest/logging"
	"github.com/shuvam-kayal/Devember-CollabQuest/models"

	"github.com/sony/gobreaker"
)

// Notifier is the notification sink. Sends are best effort: they run
// after the aggregate is saved and a failure is logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification)
}

// CascadeClient removes everything that hangs off a team in other
// services (its chat group, its outstanding matches) once the team is
// deleted. Best effort, completed before the caller is answered.
type CascadeClient interface {
	DeleteTeamArtifacts(ctx context.Context, teamID string)
}

// HTTPNotifier posts notifications to the notifications service behind a
// circuit breaker.
type HTTPNotifier struct {
	HTTPClient *http.Client
	Breaker    *gobreaker.CircuitBreaker
	BaseURL    string
}

func NewHTTPNotifier(httpClient *http.Client, breaker *gobreaker.CircuitBreaker, baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		HTTPClient: httpClient,
		Breaker:    breaker,
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, notification models.Notification) {
	body, err := json.Marshal(notification)
	if err != nil {
		logging.Logger.Errorf("Event ID: NOTIFICATION_MARSHAL_FAILED, Description: Failed to encode notification for %s: %v", notification.RecipientID, err)
		return
	}

	_, err = n.Breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+"/api/notifications", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("notifications service returned %s", resp.Status)
		}
		return nil, nil
	})
	if err != nil {
		logging.Logger.Warnf("Event ID: NOTIFICATION_SEND_FAILED, Description: Failed to notify user %s: %v", notification.RecipientID, err)
	}
}

// HTTPCascade calls the chat and matches services to clean up after a
// deleted team.
type HTTPCascade struct {
	HTTPClient     *http.Client
	ChatBreaker    *gobreaker.CircuitBreaker
	MatchesBreaker *gobreaker.CircuitBreaker
	ChatURL        string
	MatchesURL     string
}

func NewHTTPCascade(httpClient *http.Client, chatBreaker, matchesBreaker *gobreaker.CircuitBreaker, chatURL, matchesURL string) *HTTPCascade {
	return &HTTPCascade{
		HTTPClient:     httpClient,
		ChatBreaker:    chatBreaker,
		MatchesBreaker: matchesBreaker,
		ChatURL:        strings.TrimRight(chatURL, "/"),
		MatchesURL:     strings.TrimRight(matchesURL, "/"),
	}
}

func (c *HTTPCascade) DeleteTeamArtifacts(ctx context.Context, teamID string) {
	c.deleteResource(ctx, c.ChatBreaker, fmt.Sprintf("%s/api/chat/groups/team/%s", c.ChatURL, teamID), "CHAT_GROUP_DELETE_FAILED")
	c.deleteResource(ctx, c.MatchesBreaker, fmt.Sprintf("%s/api/matches/team/%s", c.MatchesURL, teamID), "MATCHES_DELETE_FAILED")
}

func (c *HTTPCascade) deleteResource(ctx context.Context, breaker *gobreaker.CircuitBreaker, url, eventID string) {
	_, err := breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		// A 404 just means there was nothing to clean up.
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return nil, nil
	})
	if err != nil {
		logging.Logger.Warnf("Event ID: %s, Description: Cleanup call %s failed: %v", eventID, url, err)
	}
}
