package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/detox/internal/assistant"
	"github.com/matheus3301/detox/internal/lock"
	"github.com/matheus3301/detox/internal/messaging"
	"github.com/matheus3301/detox/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, holder, err := daemonHolder()
		if err != nil {
			return err
		}
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		r, raw, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(raw)
		}
		fmt.Printf("Session:  %s\n", name)
		fmt.Printf("PID:      %d\n", holder.PID)
		fmt.Printf("Status:   %s\n", r.Status)
		fmt.Printf("Backend:  %s\n", r.Backend)
		fmt.Printf("User:     %s\n", r.UserID)
		fmt.Printf("HTTP:     %s\n", holder.HTTPAddr)
		fmt.Printf("Uptime:   %s\n", (time.Duration(r.UptimeMs) * time.Millisecond).Round(time.Second))
		fmt.Printf("Push:     %d client(s), following=%v\n", r.PushClients, r.PushFollowing)
		if r.OpenPeer != "" {
			fmt.Printf("Open:     %s\n", r.OpenPeer)
		}
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts [query]",
	Short: "List contacts, optionally filtered",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		l, raw, err := c.Contacts(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(raw)
		}
		if l.Degraded {
			fmt.Println("(showing fallback contacts)")
		}
		for _, ct := range l.Contacts {
			online := " "
			if ct.Online {
				online = "●"
			}
			fmt.Printf("%s %-36s %-24s %s\n", online, ct.ID, ct.DisplayName, ct.LastMessagePreview)
		}
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <user-id>",
	Short: "Open the conversation with a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		snap, raw, err := c.Open(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(raw)
		}
		printSnapshot(snap)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		return c.CloseConversation(ctx)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		snap, raw, err := c.Window(ctx)
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(raw)
		}
		printSnapshot(snap)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send a message into the open conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMessage(cmd, func(ctx context.Context, c messageClient) (*messaging.ChatMessage, *structpb.Struct, error) {
			return c.Send(ctx, strings.Join(args, " "))
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <local-id>",
	Short: "Resend a message that failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMessage(cmd, func(ctx context.Context, c messageClient) (*messaging.ChatMessage, *structpb.Struct, error) {
			return c.Retry(ctx, args[0])
		})
	},
}

type messageClient interface {
	Send(ctx context.Context, text string) (*messaging.ChatMessage, *structpb.Struct, error)
	Retry(ctx context.Context, localID string) (*messaging.ChatMessage, *structpb.Struct, error)
}

func runMessage(cmd *cobra.Command, call func(context.Context, messageClient) (*messaging.ChatMessage, *structpb.Struct, error)) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	m, raw, err := call(ctx, c)
	if err != nil {
		return err
	}
	if jsonFlag {
		return outputJSON(raw)
	}
	printMessage(*m)
	return nil
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream conversation events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = c.Watch(ctx, func(s *structpb.Struct) error {
			if jsonFlag {
				return outputJSON(s)
			}
			kind := s.Fields["kind"].GetStringValue()
			at := time.UnixMilli(int64(s.Fields["occurred_at_unix_ms"].GetNumberValue()))
			fmt.Printf("%s %s %s\n", at.Format("15:04:05"), kind, summarize(s.Fields["payload"]))
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask the wellbeing assistant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, holder, err := daemonHolder()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		ac := assistant.NewClient("http://"+holder.HTTPAddr, timeoutFlag)
		resp, err := ac.Ask(ctx, []assistant.Message{{Role: assistant.RoleUser, Content: strings.Join(args, " ")}})
		if err != nil {
			fmt.Fprintln(os.Stderr, "No se pudo conectar con AURA. Por favor, inténtalo de nuevo más tarde.")
			return err
		}
		fmt.Println(resp.Content)
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List known sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, err := session.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, name := range names {
			state := "stopped"
			h, held, err := lock.Inspect(session.Dir(name))
			switch {
			case err != nil:
				state = "unknown: " + err.Error()
			case held:
				state = fmt.Sprintf("running (pid %d, http %s)", h.PID, h.HTTPAddr)
			}
			fmt.Printf("%-20s %s\n", name, state)
		}
		return nil
	},
}

func printSnapshot(s *messaging.Snapshot) {
	var flags []string
	if s.Degraded {
		flags = append(flags, "fallback history")
	}
	if !s.Live {
		flags = append(flags, "no live updates")
	}
	header := "Conversation with " + s.Peer
	if len(flags) > 0 {
		header += " (" + strings.Join(flags, ", ") + ")"
	}
	fmt.Println(header)
	for _, m := range s.Messages {
		printMessage(m)
	}
}

func printMessage(m messaging.ChatMessage) {
	who := "them"
	if m.IsMine {
		who = "me"
	}
	line := fmt.Sprintf("[%s] %-4s %s", m.DisplayTimestamp, who, m.Content)
	if m.State == messaging.StateFailed {
		line += "  (retry: " + m.LocalID + ")"
	}
	fmt.Println(line)
}

func summarize(v *structpb.Value) string {
	if v == nil {
		return ""
	}
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		return s.StringValue
	}
	fields := v.GetStructValue().GetFields()
	if msg, ok := fields["message"]; ok {
		if inner := msg.GetStructValue().GetFields(); inner != nil {
			return inner["content"].GetStringValue()
		}
		return msg.GetStringValue()
	}
	if peer, ok := fields["peer"]; ok {
		return peer.GetStringValue()
	}
	return ""
}
