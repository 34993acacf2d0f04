package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/matheus3301/detox/internal/domain"
)

// CurrentUserID asks GoTrue who owns the configured access token.
func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	if c.opts.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token", domain.ErrAuthUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthUnavailable, err)
	}
	req.Header.Set("apikey", c.opts.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)

	body, err := c.do(req, domain.ErrAuthUnavailable)
	if err != nil {
		return "", err
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return "", fmt.Errorf("%w: parse user: %v", domain.ErrAuthUnavailable, err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: empty user id", domain.ErrAuthUnavailable)
	}
	return user.ID, nil
}
