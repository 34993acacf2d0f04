package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply   string
	err     error
	block   bool
	system  string
	history []Message
}

func (s *stubGenerator) Generate(ctx context.Context, system string, history []Message) (string, error) {
	s.system = system
	s.history = history
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

func TestReplyForwardsLastTenMessages(t *testing.T) {
	gen := &stubGenerator{reply: "**Hola**"}
	p := NewProxy(gen, time.Second, nil)

	var msgs []Message
	msgs = append(msgs, Message{Role: "system", Content: "ignored"})
	for i := 0; i < 15; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msgs = append(msgs, Message{Role: role, Content: strings.Repeat("x", i+1)})
	}

	reply, degraded := p.Reply(context.Background(), msgs)
	assert.Equal(t, "**Hola**", reply)
	assert.False(t, degraded)
	require.Len(t, gen.history, MaxHistory)
	assert.Equal(t, strings.Repeat("x", 15), gen.history[MaxHistory-1].Content)
	assert.Contains(t, gen.system, "AURA")
}

func TestReplyCannedOnFailure(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "¿Qué es la desintoxicación digital?"}}

	for name, gen := range map[string]Generator{
		"no generator": nil,
		"model error":  &stubGenerator{err: errors.New("quota")},
		"timeout":      &stubGenerator{block: true},
	} {
		t.Run(name, func(t *testing.T) {
			p := NewProxy(gen, 20*time.Millisecond, nil)
			reply, degraded := p.Reply(context.Background(), msgs)
			assert.True(t, degraded)
			assert.Contains(t, cannedReplies, reply)

			again, _ := p.Reply(context.Background(), msgs)
			assert.Equal(t, reply, again, "canned choice is deterministic")
		})
	}
}

func TestServeHTTP(t *testing.T) {
	p := NewProxy(&stubGenerator{err: errors.New("down")}, time.Second, nil)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hola"}]}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded":true`)

	for _, body := range []string{`{}`, `{"messages":"nope"}`, `not json`} {
		rec = httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestClientAsk(t *testing.T) {
	srv := httptest.NewServer(NewProxy(&stubGenerator{reply: "respuesta"}, time.Second, nil))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	resp, err := c.Ask(context.Background(), []Message{{Role: RoleUser, Content: "hola"}})
	require.NoError(t, err)
	assert.Equal(t, "respuesta", resp.Content)
	assert.False(t, resp.Degraded)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 20*time.Millisecond)
	_, err := c.Ask(context.Background(), []Message{{Role: RoleUser, Content: "hola"}})
	assert.Error(t, err)
}
