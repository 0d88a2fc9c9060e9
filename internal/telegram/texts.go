package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UI texts in English
const (
	startText = "👋 This chat is now subscribed to company notifications.\n\n" +
		"Use /status to see what is scheduled and /stop to unsubscribe."
	stoppedText       = "⏸ Unsubscribed. Send /start to subscribe again."
	notRegisteredText = "This chat is not subscribed. Send /start to subscribe."
	helpText          = "/start - subscribe this chat\n/stop - unsubscribe\n/status - scheduled notifications"
	statusFmt         = "🧾 Active notifications: %d\n• Next send: %s\n\n"

	errRegisterText = "Could not subscribe this chat. Please try again later."
	errStopText     = "Could not unsubscribe. Please try again later."
	errStatusText   = "Error reading the schedule."
)

// mainMenuKeyboard builds a reply keyboard with a single toggle button:
// if enabled is true -> "/stop", else -> "/start".
func mainMenuKeyboard(enabled bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := "/stop"
	if !enabled {
		toggle = "/start"
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton(toggle),
		),
	)
}
