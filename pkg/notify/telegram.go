package notify

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v3"

	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/storage"
)

// Sender is the part of *tele.Bot the notifier uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram routes a notification through the bot the recipient talks to:
// drivers and admins use the driver bot, passengers the passenger bot.
type Telegram struct {
	users     storage.IUserStorage
	passenger Sender
	driver    Sender
	log       logger.ILogger
}

func NewTelegram(users storage.IUserStorage, passenger, driver Sender, log logger.ILogger) *Telegram {
	return &Telegram{users: users, passenger: passenger, driver: driver, log: log}
}

func (t *Telegram) Notify(ctx context.Context, userID, text string) error {
	user, err := t.users.GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.TelegramID == 0 {
		return nil
	}

	bot := t.passenger
	if user.Role != models.RolePassenger && t.driver != nil {
		bot = t.driver
	}
	if bot == nil {
		t.log.Debug("no bot for notification", logger.String("user_id", userID))
		return nil
	}

	_, err = bot.Send(&tele.User{ID: user.TelegramID}, text)
	return err
}
