package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/matheus3301/detox/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func newTestClient(t *testing.T, h http.Handler, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.URL = srv.URL
	if opts.AnonKey == "" {
		opts.AnonKey = "anon"
	}
	c := NewClient(opts, nil)
	t.Cleanup(c.Close)
	return c
}

func TestListProfilesSendsAuthHeaders(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/profiles", r.URL.Path)
		assert.Equal(t, "username.asc", r.URL.Query().Get("order"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-jwt", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[
			{"id":"1","username":"maria","full_name":"María","avatar_url":null,"online":true,"last_seen":"2024-05-01T10:00:00.123456+00:00"},
			{"id":"2","username":null,"full_name":null,"online":null,"last_seen":null}
		]`)
	})
	c := newTestClient(t, h, Options{AccessToken: "user-jwt"})

	profiles, err := c.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "María", profiles[0].FullName)
	assert.True(t, profiles[0].Online)
	require.NotNil(t, profiles[0].LastSeen)
	assert.Equal(t, 2024, profiles[0].LastSeen.Year())
	assert.Empty(t, profiles[1].Username)
	assert.Nil(t, profiles[1].LastSeen)
}

func TestListProfilesErrorIsDirectoryUnavailable(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	c := newTestClient(t, h, Options{})

	_, err := c.ListProfiles(context.Background())
	assert.ErrorIs(t, err, domain.ErrDirectoryUnavailable)
}

func TestRequestTimeoutIsDistinctKind(t *testing.T) {
	release := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	c := newTestClient(t, h, Options{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.QueryConversation(ctx, "a", "b")
	assert.ErrorIs(t, err, domain.ErrMessageStoreUnavailable)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestGetProfileNotFound(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.42", r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, `[]`)
	})
	c := newTestClient(t, h, Options{})

	_, err := c.GetProfile(context.Background(), "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateOnlineStatus(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("id"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["online"])
		assert.NotEmpty(t, body["last_seen"])
		_, _ = io.WriteString(w, `[]`)
	})
	c := newTestClient(t, h, Options{})
	require.NoError(t, c.UpdateOnlineStatus(context.Background(), "u1", false))
}

func TestQueryConversationFilter(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "(and(sender_id.eq.a,receiver_id.eq.b),and(sender_id.eq.b,receiver_id.eq.a))", q.Get("or"))
		assert.Equal(t, "created_at.asc", q.Get("order"))
		_, _ = io.WriteString(w, `[
			{"id":"m1","sender_id":"a","receiver_id":"b","content":"hola","created_at":"2024-05-01T10:00:00+00:00"},
			{"id":"m2","sender_id":"b","receiver_id":"a","content":"qué tal","created_at":"2024-05-01 10:00:01.5"}
		]`)
	})
	c := newTestClient(t, h, Options{})

	msgs, err := c.QueryConversation(context.Background(), "a", "b")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hola", msgs[0].Content)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
}

func TestInsertMessageClientIDOptIn(t *testing.T) {
	for _, sendClientID := range []bool{false, true} {
		t.Run(map[bool]string{false: "omitted", true: "sent"}[sendClientID], func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				_, has := body["client_id"]
				assert.Equal(t, sendClientID, has)
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `[{"id":"srv-1","sender_id":"a","receiver_id":"b","content":"hi","created_at":"2024-05-01T10:00:00Z"}]`)
			})
			c := newTestClient(t, h, Options{SendClientID: sendClientID})

			row, err := c.InsertMessage(context.Background(), &domain.Message{SenderID: "a", ReceiverID: "b", Content: "hi", ClientID: "local-1"})
			require.NoError(t, err)
			assert.Equal(t, "srv-1", row.ID)
		})
	}
}

func TestCurrentUserID(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id":"user-1","email":"x@y"}`)
	})

	c := newTestClient(t, h, Options{AccessToken: "good"})
	id, err := c.CurrentUserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	c = newTestClient(t, h, Options{AccessToken: "bad"})
	_, err = c.CurrentUserID(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthUnavailable)

	c = newTestClient(t, h, Options{})
	_, err = c.CurrentUserID(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthUnavailable)
}

// fakeRealtime speaks enough of the Phoenix protocol to exercise a subscription.
type fakeRealtime struct {
	t       *testing.T
	reject  bool
	mu      sync.Mutex
	conn    *websocket.Conn
	joined  chan struct{}
	events  chan string
	upgrade websocket.Upgrader
}

func newFakeRealtime(t *testing.T, reject bool) *fakeRealtime {
	return &fakeRealtime{t: t, reject: reject, joined: make(chan struct{}), events: make(chan string, 16)}
}

func (f *fakeRealtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/realtime/v1/websocket") || r.URL.Query().Get("apikey") == "" {
		http.NotFound(w, r)
		return
	}
	conn, err := f.upgrade.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case f.events <- msg.Event:
		default:
		}
		if msg.Event != "phx_join" {
			continue
		}
		status := "ok"
		if f.reject {
			status = "error"
		}
		reply, _ := json.Marshal(phxReply{Status: status, Response: json.RawMessage(`{}`)})
		_ = conn.WriteJSON(phxMessage{Topic: msg.Topic, Event: "phx_reply", Payload: reply, Ref: msg.Ref})
		if !f.reject {
			f.mu.Lock()
			f.conn = conn
			f.mu.Unlock()
			close(f.joined)
		}
	}
}

func (f *fakeRealtime) push(record string) {
	payload := `{"data":{"type":"INSERT","table":"messages","record":` + record + `}}`
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NoError(f.t, f.conn.WriteJSON(phxMessage{Topic: realtimeTopic, Event: "postgres_changes", Payload: json.RawMessage(payload)}))
}

// hangUp ends the joined channel: with an event it sends that channel event,
// otherwise it closes the socket.
func (f *fakeRealtime) hangUp(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event == "" {
		require.NoError(f.t, f.conn.Close())
		return
	}
	require.NoError(f.t, f.conn.WriteJSON(phxMessage{Topic: realtimeTopic, Event: event, Payload: json.RawMessage(`{}`)}))
}

func TestSubscribeInsertsDeliversRecords(t *testing.T) {
	fake := newFakeRealtime(t, false)
	c := newTestClient(t, fake, Options{AccessToken: "jwt", Heartbeat: 10 * time.Millisecond})

	got := make(chan domain.Message, 4)
	sub, err := c.SubscribeInserts(context.Background(), func(m domain.Message) { got <- m })
	require.NoError(t, err)

	<-fake.joined
	fake.push(`{"id":"m9","sender_id":"a","receiver_id":"b","content":"live","created_at":"2024-05-01T10:00:00.5+00:00","client_id":"loc-9"}`)

	select {
	case m := <-got:
		assert.Equal(t, "m9", m.ID)
		assert.Equal(t, "loc-9", m.ClientID)
		assert.Equal(t, "live", m.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for realtime insert")
	}

	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-fake.events:
				if e == "heartbeat" {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	select {
	case <-sub.Done():
	default:
		t.Fatal("Done still open after Close")
	}
	assert.NoError(t, sub.Err(), "owner close is not a failure")
}

func TestSubscriptionReportsServerHangUp(t *testing.T) {
	for name, event := range map[string]string{
		"socket closed": "",
		"phx_error":     "phx_error",
		"phx_close":     "phx_close",
	} {
		t.Run(name, func(t *testing.T) {
			fake := newFakeRealtime(t, false)
			c := newTestClient(t, fake, Options{Heartbeat: 10 * time.Millisecond})

			sub, err := c.SubscribeInserts(context.Background(), func(domain.Message) {})
			require.NoError(t, err)
			<-fake.joined

			fake.hangUp(event)
			select {
			case <-sub.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("Done not closed after the server hung up")
			}
			assert.ErrorIs(t, sub.Err(), domain.ErrSubscription)
			require.NoError(t, sub.Close())
		})
	}
}

func TestSubscribeInsertsJoinRejected(t *testing.T) {
	fake := newFakeRealtime(t, true)
	c := newTestClient(t, fake, Options{})

	_, err := c.SubscribeInserts(context.Background(), func(domain.Message) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSubscription))
}

func TestSubscribeInsertsDialFailure(t *testing.T) {
	c := NewClient(Options{URL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)
	defer c.Close()

	_, err := c.SubscribeInserts(context.Background(), func(domain.Message) {})
	assert.ErrorIs(t, err, domain.ErrSubscription)
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.123456+00:00",
		"2024-05-01T10:00:00.123+00",
		"2024-05-01T10:00:00.123456",
		"2024-05-01 10:00:00+00",
	} {
		ts, err := parseTimestamp(s)
		if err != nil {
			t.Errorf("parseTimestamp(%q) error = %v", s, err)
			continue
		}
		if ts.Hour() != 10 {
			t.Errorf("parseTimestamp(%q) hour = %d", s, ts.Hour())
		}
	}
	if _, err := parseTimestamp("yesterday"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}
