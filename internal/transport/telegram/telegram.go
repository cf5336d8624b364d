// Package telegram is a Telegram-backed delivery client. The address
// is interpreted as a numeric chat id; attachments are sent as
// documents with the rendered text as caption.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"wablast/pkg/logx"
)

type Config struct {
	Token string
	// RatePerSec throttles sends; Telegram enforces its own limits and
	// rejects bursts. Default 20.
	RatePerSec int
	// SendTimeout bounds each API call. Default 30s.
	SendTimeout time.Duration
}

type Sender struct {
	cfg     Config
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	// Send-only: the bot is never started, so no poller runs.
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{
		cfg:     cfg,
		bot:     b,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}, nil
}

func (s *Sender) Send(ctx context.Context, address, text, attachment string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(address), 10, 64)
	if err != nil {
		return fmt.Errorf("address %q is not a telegram chat id", address)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	// telebot has no ctx-aware send; bound the call with a deadline
	// check before and rely on the HTTP client timeout inside.
	if err := ctx.Err(); err != nil {
		return err
	}

	chat := &tele.Chat{ID: id}
	if attachment != "" {
		doc := &tele.Document{File: tele.FromDisk(attachment), Caption: text}
		if _, err := s.bot.Send(chat, doc); err != nil {
			return fmt.Errorf("send document: %w", err)
		}
	} else if _, err := s.bot.Send(chat, text); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	s.log.Debug("telegram message sent", logx.Int64("chat_id", id), logx.Bool("attachment", attachment != ""))
	return nil
}
