package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/chatrelay/internal/db"
	"github.com/stupiduntilnot/chatrelay/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a chat session as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *sessions, key string) error {
				return writeHistory(cmd.OutOrStdout(), s.store.Load(cmd.Context(), key))
			})
		},
	}
	cmd.Flags().Int64("chat", 0, "Chat id (required).")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *sessions, key string) error {
				if err := s.store.Reset(cmd.Context(), key); err != nil {
					return err
				}
				s.events.LogEvent(nil, db.EventSessionReset, map[string]any{"chat_key": key, "source": "cli"})
				fmt.Fprintf(cmd.OutOrStdout(), "session %s cleared\n", key)
				return nil
			})
		},
	}
	cmd.Flags().Int64("chat", 0, "Chat id (required).")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

// withSession opens the configured store and runs fn with the session key
// of --chat.
func withSession(cmd *cobra.Command, fn func(s *sessions, key string) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.BotID == 0 {
		return fmt.Errorf("BOT_ID is required in environment")
	}
	chatID, _ := cmd.Flags().GetInt64("chat")
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	s, err := openSessions(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s, history.SessionKey(chatID, cfg.BotID))
}

type historyLine struct {
	ID             string              `json:"id"`
	Role           string              `json:"role"`
	Username       string              `json:"username"`
	Text           string              `json:"text"`
	ReplyToID      string              `json:"reply_to_id,omitempty"`
	ToolCallID     string              `json:"tool_call_id,omitempty"`
	ToolCalls      []history.ToolCall  `json:"tool_calls,omitempty"`
	ToolImagesMeta []history.ImageMeta `json:"tool_images_meta,omitempty"`
}

func writeHistory(w io.Writer, msgs []history.Message) error {
	enc := json.NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(historyLine{
			ID:             m.ID,
			Role:           m.Role,
			Username:       m.Username,
			Text:           m.Text,
			ReplyToID:      m.ReplyToID,
			ToolCallID:     m.ToolCallID,
			ToolCalls:      m.ToolCalls,
			ToolImagesMeta: m.ToolImagesMeta,
		}); err != nil {
			return err
		}
	}
	return nil
}
