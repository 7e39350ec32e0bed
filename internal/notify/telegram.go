// Package notify delivers approval and refund notices.
package notify

import (
	"context"
	"fmt"

	"resortbook/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier posts notices to a staff chat; the recipient is quoted
// in the message so staff can follow up with the guest.
type TelegramNotifier struct {
	bot    domain.TelegramSender
	chatID int64
}

func NewTelegramNotifier(bot domain.TelegramSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// DialTelegram connects to the Bot API with token.
func DialTelegram(token string, chatID int64, debug bool) (*TelegramNotifier, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	botAPI.Debug = debug
	return NewTelegramNotifier(botAPI, chatID), nil
}

func (n *TelegramNotifier) SendApprovalNotice(ctx context.Context, recipient, bookingRef string) error {
	text := fmt.Sprintf("✅ *Booking approved*\nBooking: %s\nGuest: %s",
		escape(bookingRef), escape(recipient))
	return n.send(ctx, text)
}

func (n *TelegramNotifier) SendRefundNotice(ctx context.Context, recipient, bookingRef, reason string) error {
	text := fmt.Sprintf("💸 *Refund required*\nBooking: %s\nGuest: %s\nReason: %s",
		escape(bookingRef), escape(recipient), escape(reason))
	return n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}
