// Package posts manages the user's own feed of reflections, quotes, goals and
// milestones.
package posts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
)

// Draft is the user-editable part of a post.
type Draft struct {
	Type    domain.PostType `json:"type"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Image   string          `json:"image,omitempty"`
}

// View is a post with its display strings.
type View struct {
	domain.Post
	TypeLabel     string `json:"type_label"`
	DateFormatted string `json:"date_formatted"`
}

// Service validates drafts and applies them to a PostStore.
type Service struct {
	store domain.PostStore
	loc   *time.Location
	now   func() time.Time
	log   *zap.Logger
}

// NewService creates a service over store. Dates are formatted in loc; nil
// means the local time zone.
func NewService(store domain.PostStore, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, loc: loc, now: time.Now, log: log}
}

// List returns every post, newest first.
func (s *Service) List(ctx context.Context) ([]View, error) {
	ps, err := s.store.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(ps))
	for _, p := range ps {
		out = append(out, s.view(p))
	}
	return out, nil
}

// Add publishes d as a new post with no likes or comments.
func (s *Service) Add(ctx context.Context, d Draft) (View, error) {
	d, err := clean(d)
	if err != nil {
		return View{}, err
	}
	p, err := s.store.AddPost(ctx, domain.Post{
		Type:      d.Type,
		Title:     d.Title,
		Content:   d.Content,
		Image:     d.Image,
		CreatedAt: s.now(),
	})
	if err != nil {
		return View{}, err
	}
	s.log.Info("post added", zap.String("id", p.ID), zap.String("type", string(p.Type)))
	return s.view(*p), nil
}

// Update replaces the editable fields of post id with d.
func (s *Service) Update(ctx context.Context, id string, d Draft) (View, error) {
	d, err := clean(d)
	if err != nil {
		return View{}, err
	}
	p, err := s.store.UpdatePost(ctx, domain.Post{ID: id, Type: d.Type, Title: d.Title, Content: d.Content, Image: d.Image})
	if err != nil {
		return View{}, err
	}
	return s.view(*p), nil
}

// Delete removes post id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePost(ctx, id); err != nil {
		return err
	}
	s.log.Info("post deleted", zap.String("id", id))
	return nil
}

// Like adds one like to post id.
func (s *Service) Like(ctx context.Context, id string) (View, error) {
	p, err := s.store.LikePost(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(*p), nil
}

func (s *Service) view(p domain.Post) View {
	return View{Post: p, TypeLabel: TypeLabel(p.Type), DateFormatted: FormatDate(p.CreatedAt.In(s.loc))}
}

func clean(d Draft) (Draft, error) {
	if !d.Type.Valid() {
		return d, fmt.Errorf("%w: unknown post type %q", domain.ErrValidation, d.Type)
	}
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
	d.Image = strings.TrimSpace(d.Image)
	if d.Content == "" {
		return d, fmt.Errorf("%w: post content is empty", domain.ErrValidation)
	}
	return d, nil
}

// TypeLabel returns the Spanish label shown for t.
func TypeLabel(t domain.PostType) string {
	switch t {
	case domain.PostReflection:
		return "Reflexión"
	case domain.PostQuote:
		return "Cita"
	case domain.PostGoal:
		return "Meta"
	case domain.PostMilestone:
		return "Logro"
	}
	return ""
}

var months = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatDate renders t as "5 de abril de 2025, 09:30".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d, %02d:%02d", t.Day(), months[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}
