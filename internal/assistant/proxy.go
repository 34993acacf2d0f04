// Package assistant proxies chat requests to a hosted model. It never fails
// outward: any model error is answered with a canned reply.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	// MaxHistory is how many trailing messages are forwarded to the model.
	MaxHistory = 10

	temperature = 0.7
	maxTokens   = 500
)

// Roles accepted in chat requests.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /api/chat.
type Request struct {
	Messages []Message `json:"messages"`
}

// Response is the reply to POST /api/chat.
type Response struct {
	Content  string `json:"content"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Generator produces a model reply.
type Generator interface {
	Generate(ctx context.Context, system string, history []Message) (string, error)
}

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator for apiKey and model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, system string, history []Message) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	temp := float32(temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   maxTokens,
	}
	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}
	return text, nil
}

// Proxy answers chat requests with the generator or a canned reply.
type Proxy struct {
	gen     Generator
	timeout time.Duration
	log     *zap.Logger
}

// NewProxy creates a proxy. gen may be nil, in which case every reply is canned.
func NewProxy(gen Generator, timeout time.Duration, log *zap.Logger) *Proxy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Proxy{gen: gen, timeout: timeout, log: log}
}

// Reply returns the model's answer to msgs. degraded is true when the answer
// is canned.
func (p *Proxy) Reply(ctx context.Context, msgs []Message) (reply string, degraded bool) {
	history := trim(msgs)
	if p.gen == nil {
		return canned(history), true
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	text, err := p.gen.Generate(ctx, systemPrompt, history)
	if err != nil {
		p.log.Warn("assistant model failed, using canned reply", zap.Error(err))
		return canned(history), true
	}
	return text, false
}

// ServeHTTP handles POST /api/chat.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Messages == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "El formato de los mensajes es incorrecto"})
		return
	}
	text, degraded := p.Reply(r.Context(), req.Messages)
	writeJSON(w, http.StatusOK, Response{Content: text, Degraded: degraded})
}

func trim(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			out = append(out, m)
		}
	}
	if len(out) > MaxHistory {
		out = out[len(out)-MaxHistory:]
	}
	return out
}

// canned picks a reply deterministically from the last user message.
func canned(history []Message) string {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			last = history[i].Content
			break
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(last))
	return cannedReplies[h.Sum32()%uint32(len(cannedReplies))]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
