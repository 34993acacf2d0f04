package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/matheus3301/detox/internal/domain"
)

type profileRow struct {
	ID        string  `json:"id"`
	Username  *string `json:"username"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Online    *bool   `json:"online"`
	LastSeen  *string `json:"last_seen"`
}

func (r profileRow) toDomain() domain.Profile {
	p := domain.Profile{
		ID:        r.ID,
		Username:  deref(r.Username),
		FullName:  deref(r.FullName),
		AvatarURL: deref(r.AvatarURL),
		Online:    r.Online != nil && *r.Online,
	}
	if r.LastSeen != nil {
		if t, err := parseTimestamp(*r.LastSeen); err == nil {
			p.LastSeen = &t
		}
	}
	return p
}

// ListProfiles retrieves every profile visible to the caller.
func (c *Client) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	respBody, err := c.doRequest(ctx, domain.ErrDirectoryUnavailable, http.MethodGet, "profiles?select=*&order=username.asc", nil)
	if err != nil {
		return nil, err
	}
	return decodeProfiles(respBody)
}

// GetProfile retrieves a profile by id.
func (c *Client) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	endpoint := "profiles?select=*&id=eq." + url.QueryEscape(id)
	respBody, err := c.doRequest(ctx, domain.ErrDirectoryUnavailable, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	profiles, err := decodeProfiles(respBody)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profile %q: %w", id, domain.ErrNotFound)
	}
	return &profiles[0], nil
}

// UpdateOnlineStatus sets the caller's presence flag and last_seen.
func (c *Client) UpdateOnlineStatus(ctx context.Context, userID string, online bool) error {
	data := map[string]any{
		"online":    online,
		"last_seen": time.Now().UTC().Format(time.RFC3339Nano),
	}
	endpoint := "profiles?id=eq." + url.QueryEscape(userID)
	_, err := c.doRequest(ctx, domain.ErrDirectoryUnavailable, http.MethodPatch, endpoint, data)
	return err
}

func decodeProfiles(body []byte) ([]domain.Profile, error) {
	var rows []profileRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: parse profiles: %v", domain.ErrDirectoryUnavailable, err)
	}
	out := make([]domain.Profile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
