package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/matheus3301/detox/internal/client"
	"github.com/matheus3301/detox/internal/lock"
	"github.com/matheus3301/detox/internal/session"
)

var (
	sessionFlag string
	jsonFlag    bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "detoxctl",
	Short:         "Control a running detox daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 15*time.Second, "per-command timeout")

	rootCmd.AddCommand(
		statusCmd,
		contactsCmd,
		openCmd,
		closeCmd,
		historyCmd,
		sendCmd,
		retryCmd,
		tailCmd,
		askCmd,
		sessionsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func sessionName() (string, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// daemonHolder returns the running daemon's lock record.
func daemonHolder() (string, *lock.Holder, error) {
	name, err := sessionName()
	if err != nil {
		return "", nil, err
	}
	h, held, err := lock.Inspect(session.Dir(name))
	if err != nil {
		return name, nil, err
	}
	if !held {
		return name, nil, fmt.Errorf("no daemon running for session %q", name)
	}
	return name, h, nil
}

func connect() (*client.Client, error) {
	name, _, err := daemonHolder()
	if err != nil {
		return nil, err
	}
	c, err := client.New(session.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeoutFlag)
}

func outputJSON(m proto.Message) error {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
