// Package notify defines the outbound notification port. Implementations
// are best-effort: callers log failures and never let delivery problems
// reach game state.
package notify

import "github.com/rs/zerolog/log"

// Notifier delivers game announcements to chats and private messages to
// users. Both operations are fire-and-forget from the core's view.
type Notifier interface {
	Announce(chatID int64, text string) error
	NotifyDirect(userID int64, text string) error
}

// LogNotifier writes notifications to the log instead of delivering
// them. Used in tests and when no transport is configured.
type LogNotifier struct{}

// Announce logs the chat announcement.
func (LogNotifier) Announce(chatID int64, text string) error {
	log.Info().Int64("chat_id", chatID).Str("text", text).Msg("Announce (log only)")
	return nil
}

// NotifyDirect logs the direct notification.
func (LogNotifier) NotifyDirect(userID int64, text string) error {
	log.Info().Int64("user_id", userID).Str("text", text).Msg("Direct notification (log only)")
	return nil
}
