// Package telegram posts articles to a Telegram channel or chat via a bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"crosspost/internal/article"
)

const Name = "telegram"

var ErrMissingCredentials = errors.New("telegram: token and chat are required")

type Config struct {
	Token string
	// Chat is a numeric chat id (e.g. -1001234567890) or a public @channel.
	Chat     string
	ThreadID int
	// APIURL overrides the Bot API base, used by tests.
	APIURL     string
	HTTPClient *http.Client
}

type Poster struct {
	bot      *tele.Bot
	to       tele.Recipient
	threadID int
}

type channel string

func (c channel) Recipient() string { return string(c) }

// ParseChat accepts a numeric id or a username with or without "@".
func ParseChat(s string) (tele.Recipient, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMissingCredentials
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return tele.ChatID(id), nil
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return channel(s), nil
}

// New creates the bot without calling getMe, so construction is offline.
func New(cfg Config) (*Poster, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingCredentials
	}
	to, err := ParseChat(cfg.Chat)
	if err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   strings.TrimSpace(cfg.Token),
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Poster{bot: b, to: to, threadID: cfg.ThreadID}, nil
}

func (p *Poster) Name() string { return Name }

// PostArticle sends the composed text with the link preview left on.
// telebot has no context support; the caller's deadline still bounds the
// wait through the orchestrator.
func (p *Poster) PostArticle(ctx context.Context, a article.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt := &tele.SendOptions{ThreadID: p.threadID}
	if _, err := p.bot.Send(p.to, article.BuildText(a), opt); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SendText sends plain text with the link preview disabled. The alert
// pipeline uses it for operator messages.
func (p *Poster) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt := &tele.SendOptions{ThreadID: p.threadID, DisableWebPagePreview: true}
	if _, err := p.bot.Send(p.to, text, opt); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
