package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
)

// Send appends a provisional entry for text to the open conversation and
// writes it to the store. The returned entry reflects the outcome of the
// write: durable on success, failed (and still in the window) otherwise.
// Blank text or no open conversation is a validation error and touches
// nothing.
func (s *Session) Send(ctx context.Context, text string) (ChatMessage, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return ChatMessage{}, fmt.Errorf("%w: empty message", domain.ErrValidation)
	}

	s.mu.Lock()
	if s.window == nil {
		s.mu.Unlock()
		return ChatMessage{}, fmt.Errorf("%w: no conversation open", domain.ErrValidation)
	}
	w := s.window
	gen := s.gen
	entry := w.AddProvisional(uuid.NewString(), content, s.now())
	s.mu.Unlock()

	s.publish(w.Peer(), entry, Appended)
	s.updatePreview(w)
	return s.write(ctx, gen, w, entry)
}

// Retry re-issues the write for a failed entry. The same local id is sent
// as client id, so a store that saw the first attempt keeps a single row.
func (s *Session) Retry(ctx context.Context, localID string) (ChatMessage, error) {
	s.mu.Lock()
	if s.window == nil {
		s.mu.Unlock()
		return ChatMessage{}, fmt.Errorf("%w: no conversation open", domain.ErrValidation)
	}
	w := s.window
	gen := s.gen
	entry, outcome := w.Retrying(localID)
	s.mu.Unlock()
	if outcome == Ignored {
		return ChatMessage{}, fmt.Errorf("%w: no failed message %q", domain.ErrValidation, localID)
	}

	s.publish(w.Peer(), entry, outcome)
	return s.write(ctx, gen, w, entry)
}

func (s *Session) write(ctx context.Context, gen uint64, w *Window, entry ChatMessage) (ChatMessage, error) {
	row, err := Write(ctx, s.policy, func(ctx context.Context) (*domain.Message, error) {
		return s.store.InsertMessage(ctx, &domain.Message{
			SenderID:   w.Me(),
			ReceiverID: w.Peer(),
			Content:    entry.Content,
			ClientID:   entry.LocalID,
		})
	})

	s.mu.Lock()
	if gen != s.gen {
		// The conversation was closed while the write was in flight.
		s.mu.Unlock()
		if err != nil {
			return entry, fmt.Errorf("send: %w", err)
		}
		s.log.Debug("write completed after conversation closed", zap.String("local_id", entry.LocalID))
		return ToChatMessage(*row, w.Me()), nil
	}
	var (
		c       ChatMessage
		outcome Outcome
	)
	if err != nil {
		c, outcome = w.Fail(entry.LocalID)
		if outcome == Ignored {
			// The push echo resolved the entry before the write reported back.
			c, _ = w.Entry(entry.LocalID)
		}
	} else {
		c, outcome = w.Resolve(entry.LocalID, *row)
	}
	s.mu.Unlock()

	s.publish(w.Peer(), c, outcome)
	if err != nil {
		if c.State == StateDurable {
			return c, nil
		}
		s.log.Warn("send failed", zap.String("local_id", entry.LocalID), zap.Error(err))
		s.notify(err, "No se pudo enviar el mensaje")
		return c, fmt.Errorf("send: %w", err)
	}
	if outcome == Ignored || outcome == Retired {
		c = ToChatMessage(*row, w.Me())
		c.LocalID = entry.LocalID
	}
	return c, nil
}
