package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MojangClient is a Lookup backed by Mojang-style profile endpoints, which
// answer {"id": "<dashless uuid>", "name": "<name>"} and 204/404 for unknown
// players.
type MojangClient struct {
	nameURL string
	idURL   string
	http    *http.Client
}

// NewMojangClient creates a client. nameURL and idURL contain one %s verb
// replaced by the escaped name or the dashless uuid.
func NewMojangClient(nameURL, idURL string, timeout time.Duration) *MojangClient {
	return &MojangClient{
		nameURL: nameURL,
		idURL:   idURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type mojangProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *MojangClient) LookupByName(ctx context.Context, name string) (Profile, error) {
	return c.get(ctx, fmt.Sprintf(c.nameURL, url.PathEscape(name)))
}

func (c *MojangClient) LookupByID(ctx context.Context, id uuid.UUID) (Profile, error) {
	return c.get(ctx, fmt.Sprintf(c.idURL, strings.ReplaceAll(id.String(), "-", "")))
}

func (c *MojangClient) get(ctx context.Context, target string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("identity: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return Profile{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return Profile{}, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var mp mojangProfile
	if err := json.NewDecoder(resp.Body).Decode(&mp); err != nil {
		return Profile{}, fmt.Errorf("%w: decode: %v", ErrServiceUnavailable, err)
	}
	id, err := ParseID(mp.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return Profile{ID: id, Name: mp.Name}, nil
}
