package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"gowa-multibot/config"
	"gowa-multibot/internal/helper"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"golang.org/x/time/rate"
)

const (
	ReplySourceRule     = "rule"
	ReplySourceFallback = "fallback"
	ReplySourceAI       = "ai"
)

const aiTimeout = 20 * time.Second

// AIResponder answers messages no keyword matched.
type AIResponder interface {
	GenerateReply(ctx context.Context, botID, sender, text string) (string, error)
}

type Reply struct {
	Text    string
	Keyword string
	Source  string
}

// AutoReplier answers inbound text messages with canned replies.
type AutoReplier struct {
	rules       map[string]string
	fallback    string
	ai          AIResponder
	minInterval time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewAutoReplier(replies config.Replies, ai AIResponder, minInterval time.Duration, log zerolog.Logger) *AutoReplier {
	rules := make(map[string]string, len(replies.Rules))
	for k, v := range replies.Rules {
		rules[normalize(k)] = v
	}
	return &AutoReplier{
		rules:       rules,
		fallback:    replies.Fallback,
		ai:          ai,
		minInterval: minInterval,
		log:         log.With().Str("component", "autoreply").Logger(),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// ExtractText returns the user-visible text of a message, or "" when it has none.
func ExtractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage().GetCaption() != "":
		return msg.GetVideoMessage().GetCaption()
	}
	return ""
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Reply decides what to answer to evt. ok is false when the message must be ignored.
func (r *AutoReplier) Reply(ctx context.Context, botID string, evt *events.Message) (reply Reply, ok bool) {
	if evt == nil || evt.Info.IsFromMe || evt.Info.Chat == types.StatusBroadcastJID {
		return Reply{}, false
	}
	text := ExtractText(evt.Message)
	if strings.TrimSpace(text) == "" {
		return Reply{}, false
	}
	if !r.allow(botID, evt.Info.Chat.String()) {
		r.log.Debug().Str("bot", botID).Str("chat", evt.Info.Chat.String()).Msg("reply throttled")
		return Reply{}, false
	}

	vars := map[string]string{
		"BOT_ID":    botID,
		"SENDER":    evt.Info.Sender.User,
		"PUSH_NAME": evt.Info.PushName,
	}

	keyword := normalize(text)
	if tmpl, found := r.rules[keyword]; found {
		return Reply{Text: helper.RenderReply(tmpl, vars), Keyword: keyword, Source: ReplySourceRule}, true
	}

	if r.ai != nil {
		aiCtx, cancel := context.WithTimeout(ctx, aiTimeout)
		defer cancel()
		answer, err := r.ai.GenerateReply(aiCtx, botID, evt.Info.PushName, text)
		if err == nil && strings.TrimSpace(answer) != "" {
			return Reply{Text: answer, Source: ReplySourceAI}, true
		}
		r.log.Warn().Err(err).Str("bot", botID).Msg("AI reply failed, using fallback")
	}

	if r.fallback == "" {
		return Reply{}, false
	}
	return Reply{Text: helper.RenderReply(r.fallback, vars), Source: ReplySourceFallback}, true
}

func (r *AutoReplier) allow(botID, chat string) bool {
	if r.minInterval <= 0 {
		return true
	}
	key := botID + "|" + chat

	r.mu.Lock()
	l, found := r.limiters[key]
	if !found {
		l = rate.NewLimiter(rate.Every(r.minInterval), 1)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Forget drops the throttle state of a removed bot.
func (r *AutoReplier) Forget(botID string) {
	prefix := botID + "|"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.limiters {
		if strings.HasPrefix(key, prefix) {
			delete(r.limiters, key)
		}
	}
}
