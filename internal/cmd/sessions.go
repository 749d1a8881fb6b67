package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/chattwin/chattwin/internal/config"
	errwrap "github.com/chattwin/chattwin/internal/errors"
	"github.com/chattwin/chattwin/internal/memory"
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored conversation sessions",
}

// sessionSummary is one row of the listing.
type sessionSummary struct {
	SessionID    string `json:"session_id"`
	Turns        int    `json:"turns"`
	LastActivity string `json:"last_activity,omitempty"`
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sessions with turn counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration is invalid")
		}

		store, err := memory.Open(cmd.Context(), cfg.Memory)
		if err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to open conversation store")
		}
		defer store.Close() // nolint:errcheck // best-effort cleanup

		ids, err := store.ListSessions(cmd.Context())
		if err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to list sessions")
		}

		summaries := make([]sessionSummary, 0, len(ids))
		for _, id := range ids {
			messages, err := store.LoadConversation(cmd.Context(), id)
			if err != nil {
				return errwrap.WrapStorage(cmd.Context(), err, "failed to load session "+id)
			}
			summaries = append(summaries, summarizeSession(id, messages))
		}

		if sessionsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summaries)
		}

		if len(summaries) == 0 {
			fmt.Println("No stored sessions.")
			return nil
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Session", "Turns", "Last Activity"})
		for _, s := range summaries {
			last := s.LastActivity
			if last == "" {
				last = "-"
			}
			t.AppendRow(table.Row{s.SessionID, s.Turns, last})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d sessions", len(summaries)), ""})
		fmt.Println(t.Render())
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the transcript of one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		if _, err := memory.SanitizeSessionID(sessionID); err != nil {
			return errwrap.NewInvalidInputError("Session ID contains invalid characters")
		}

		cfg, err := config.Load()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration is invalid")
		}

		store, err := memory.Open(cmd.Context(), cfg.Memory)
		if err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to open conversation store")
		}
		defer store.Close() // nolint:errcheck // best-effort cleanup

		messages, err := store.LoadConversation(cmd.Context(), sessionID)
		if err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to load session "+sessionID)
		}

		if sessionsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(messages)
		}

		if len(messages) == 0 {
			fmt.Printf("No transcript for session %s.\n", sessionID)
			return nil
		}

		for _, msg := range messages {
			stamp := formatTimestamp(msg.Timestamp)
			if stamp != "" {
				fmt.Printf("[%s] %s: %s\n", stamp, msg.Role, msg.Content)
			} else {
				fmt.Printf("%s: %s\n", msg.Role, msg.Content)
			}
		}
		return nil
	},
}

// summarizeSession condenses a transcript into a listing row.
func summarizeSession(id string, messages []memory.Message) sessionSummary {
	summary := sessionSummary{SessionID: id, Turns: len(messages)}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Timestamp != "" {
			summary.LastActivity = formatTimestamp(messages[i].Timestamp)
			break
		}
	}
	return summary
}

// formatTimestamp renders a stored RFC3339 stamp in local time, caller
// readable. Unparseable stamps pass through untouched.
func formatTimestamp(stamp string) string {
	if stamp == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return stamp
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsCmd.PersistentFlags().BoolVar(&sessionsJSON, "json", false, "output as JSON")
}
