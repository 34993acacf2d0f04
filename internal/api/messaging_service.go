package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/google/uuid"

	"github.com/matheus3301/detox/internal/bus"
	"github.com/matheus3301/detox/internal/messaging"
	"github.com/matheus3301/detox/internal/push"
	"github.com/matheus3301/detox/internal/status"
)

// StatusReport is the GetStatus response body.
type StatusReport struct {
	Session       string `json:"session"`
	Status        string `json:"status"`
	UptimeMs      int64  `json:"uptime_ms"`
	Backend       string `json:"backend"`
	UserID        string `json:"user_id"`
	HTTPAddr      string `json:"http_addr,omitempty"`
	OpenPeer      string `json:"open_peer,omitempty"`
	PushClients   int    `json:"push_clients"`
	PushFollowing bool   `json:"push_following"`
}

// ContactList is the ListContacts response body.
type ContactList struct {
	Contacts []messaging.Contact `json:"contacts"`
	Degraded bool                `json:"degraded"`
}

// Envelope is one WatchConversation frame.
type Envelope struct {
	EventID          string `json:"event_id"`
	Session          string `json:"session"`
	Kind             string `json:"kind"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
	Payload          any    `json:"payload,omitempty"`
}

// Deps are the collaborators behind the service.
type Deps struct {
	SessionName string
	BackendName string
	HTTPAddr    string
	Machine     *status.Machine
	Identity    *messaging.IdentityResolver
	Contacts    *messaging.ContactLoader
	Session     *messaging.Session
	Hub         *push.Hub
	Bus         *bus.Bus
}

// MessagingService implements MessagingServer on top of the messaging core.
type MessagingService struct {
	deps      Deps
	startedAt time.Time
}

// NewMessagingService creates the service.
func NewMessagingService(d Deps) *MessagingService {
	return &MessagingService{deps: d, startedAt: time.Now()}
}

func (s *MessagingService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	r := StatusReport{
		Session:  s.deps.SessionName,
		Status:   string(s.deps.Machine.Current()),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
		Backend:  s.deps.BackendName,
		UserID:   s.deps.Identity.Current(ctx),
		HTTPAddr: s.deps.HTTPAddr,
		OpenPeer: s.deps.Session.CurrentPeer(),
	}
	if s.deps.Hub != nil {
		r.PushClients = s.deps.Hub.Clients()
		r.PushFollowing = s.deps.Hub.Following()
	}
	return mustStruct(r)
}

func (s *MessagingService) ListContacts(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	contacts, degraded := s.deps.Contacts.LoadOrFallback(ctx)
	return mustStruct(ContactList{
		Contacts: messaging.FilterContacts(contacts, req.GetValue()),
		Degraded: degraded,
	})
}

func (s *MessagingService) OpenConversation(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := s.deps.Session.Open(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus("open conversation", err)
	}
	return mustStruct(snap)
}

func (s *MessagingService) CloseConversation(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.deps.Session.Close()
	return &emptypb.Empty{}, nil
}

func (s *MessagingService) GetWindow(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, ok := s.deps.Session.Snapshot()
	if !ok {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no conversation open")
	}
	return mustStruct(snap)
}

func (s *MessagingService) Send(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	m, err := s.deps.Session.Send(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus("send", err)
	}
	return mustStruct(m)
}

func (s *MessagingService) Retry(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	m, err := s.deps.Session.Retry(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus("retry", err)
	}
	return mustStruct(m)
}

// WatchConversation streams window and notice events until the client goes away.
func (s *MessagingService) WatchConversation(_ *emptypb.Empty, stream grpc.ServerStream) error {
	windowCh, unsubWindow := s.deps.Bus.Subscribe("window.", 256)
	defer unsubWindow()
	noticeCh, unsubNotice := s.deps.Bus.Subscribe("notice.", 64)
	defer unsubNotice()

	for {
		var evt bus.Event
		select {
		case evt = <-windowCh:
		case evt = <-noticeCh:
		case <-stream.Context().Done():
			return nil
		}
		out, err := mustStruct(Envelope{
			EventID:          uuid.NewString(),
			Session:          s.deps.SessionName,
			Kind:             evt.Kind,
			OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
			Payload:          evt.Payload,
		})
		if err != nil {
			return err
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
}
