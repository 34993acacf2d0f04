package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/matheus3301/detox/internal/domain"
)

type messageRow struct {
	ID         string  `json:"id"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Content    string  `json:"content"`
	CreatedAt  string  `json:"created_at"`
	ClientID   *string `json:"client_id,omitempty"`
}

func (r messageRow) toDomain() (domain.Message, error) {
	created, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		CreatedAt:  created,
		ClientID:   deref(r.ClientID),
	}, nil
}

// InsertMessage writes m and returns the row the store created.
func (c *Client) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	data := map[string]any{
		"sender_id":   m.SenderID,
		"receiver_id": m.ReceiverID,
		"content":     m.Content,
	}
	if c.opts.SendClientID && m.ClientID != "" {
		data["client_id"] = m.ClientID
	}
	respBody, err := c.doRequest(ctx, domain.ErrMessageStoreUnavailable, http.MethodPost, "messages", data)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeMessages(respBody)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: insert returned no row", domain.ErrMessageStoreUnavailable)
	}
	return &msgs[0], nil
}

// QueryConversation retrieves all messages between a and b, oldest first.
func (c *Client) QueryConversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("or", fmt.Sprintf("(and(sender_id.eq.%s,receiver_id.eq.%s),and(sender_id.eq.%s,receiver_id.eq.%s))", a, b, b, a))
	q.Set("order", "created_at.asc")
	respBody, err := c.doRequest(ctx, domain.ErrMessageStoreUnavailable, http.MethodGet, "messages?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return decodeMessages(respBody)
}

func decodeMessages(body []byte) ([]domain.Message, error) {
	var rows []messageRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: parse messages: %v", domain.ErrMessageStoreUnavailable, err)
	}
	out := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: message %s: %v", domain.ErrMessageStoreUnavailable, r.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}
