package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"ragserver/internal/domain"
	"ragserver/internal/tui"
)

// apiClient talks to a running ragserver over its HTTP API.
type apiClient struct {
	serverURL string
	sessionID string
	client    *http.Client
}

func (c *apiClient) Chat(query string) (domain.Answer, error) {
	body, err := json.Marshal(map[string]string{
		"sessionId": c.sessionID,
		"query":     query,
	})
	if err != nil {
		return domain.Answer{}, err
	}
	resp, err := c.client.Post(c.serverURL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return domain.Answer{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return domain.Answer{}, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return domain.Answer{}, fmt.Errorf("chat request failed: %s", resp.Status)
	}
	var answer domain.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Base URL of the ragserver API")
	sessionID := flag.String("session", "", "Session id (random if not provided)")
	flag.Parse()

	session := *sessionID
	if session == "" {
		session = uuid.NewString()
	}

	client := &apiClient{
		serverURL: *serverURL,
		sessionID: session,
		client:    &http.Client{Timeout: 2 * time.Minute},
	}
	m := tui.New(client, session)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
