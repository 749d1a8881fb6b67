package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chattwin/chattwin/internal/config"
	errwrap "github.com/chattwin/chattwin/internal/errors"
	"github.com/chattwin/chattwin/internal/llm"
	"github.com/chattwin/chattwin/internal/llm/driver"
	"github.com/chattwin/chattwin/internal/memory"
	"github.com/chattwin/chattwin/internal/observability"
	"github.com/chattwin/chattwin/internal/ratelimit"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a single chat message from the command line",
	Long: `Send one message through the configured provider and print the reply.

The turn is stored in the conversation store under --session, so repeated
invocations with the same session ID carry context forward. Without
--session a fresh session ID is generated and printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.TrimSpace(args[0])
		if ok, reason := ratelimit.ValidateMessageContent(message); !ok {
			return errwrap.NewValidationError(reason)
		}

		cfg, err := config.Load()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration is invalid")
		}

		sessionID := chatSessionID
		generated := false
		if sessionID == "" {
			sessionID = uuid.NewString()
			generated = true
		}
		if _, err := memory.SanitizeSessionID(sessionID); err != nil {
			return errwrap.NewInvalidInputError("Session ID contains invalid characters")
		}

		store, err := memory.Open(cmd.Context(), cfg.Memory)
		if err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to open conversation store")
		}
		defer store.Close() // nolint:errcheck // best-effort cleanup

		persona, err := loadPersona(cfg.Prompt.Path)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "failed to load persona prompt")
		}

		chat, err := llm.NewService(cmd.Context(), cfg.Provider, persona.Render)
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "failed to initialize chat provider")
		}

		conversation, err := store.LoadConversation(cmd.Context(), sessionID)
		if err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to load conversation history")
		}

		history := make([]driver.Message, 0, len(conversation))
		for _, msg := range conversation {
			history = append(history, driver.Message{Role: msg.Role, Content: msg.Content})
		}

		observability.CLILogger.Debug("Sending chat message",
			zap.String("session_id", sessionID),
			zap.String("provider", chat.Provider()),
			zap.Int("history_length", len(history)))

		reply, err := chat.Respond(cmd.Context(), history, message)
		if err != nil {
			return err
		}

		now := time.Now().Format(time.RFC3339)
		conversation = append(conversation,
			memory.Message{Role: driver.RoleUser, Content: message, Timestamp: now},
			memory.Message{Role: driver.RoleAssistant, Content: reply, Timestamp: now},
		)
		if err := store.SaveConversation(cmd.Context(), sessionID, conversation); err != nil {
			return errwrap.WrapStorage(cmd.Context(), err, "failed to save conversation history")
		}

		if generated {
			fmt.Printf("Session: %s\n\n", sessionID)
		}
		fmt.Println(reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "session ID to continue (generated when omitted)")
}
