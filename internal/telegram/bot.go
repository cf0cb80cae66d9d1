package telegram

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/web3-frozen/ultrasound-monitor/internal/monitor"
	"github.com/web3-frozen/ultrasound-monitor/internal/store"
)

const (
	telegramAPI   = "https://api.telegram.org/bot"
	linkCodeTTL   = 10 * time.Minute
	linkCodeLimit = time.Minute
)

// UserStore is the part of the store the bot needs.
type UserStore interface {
	UpsertTelegramUser(ctx context.Context, chatID int64, username, linkCode string, expiresAt time.Time) error
	GetTelegramUser(ctx context.Context, chatID int64) (*store.TelegramUser, error)
	ListSubscriptions(ctx context.Context, tgChatID int64) ([]store.Subscription, error)
	ListEvents(ctx context.Context) ([]store.Event, error)
}

// SupplyReader exposes the engine's current supply.
type SupplyReader interface {
	Latest() *monitor.Snapshot
	Projection() (monitor.Projection, bool)
}

// Limiter grants a key once per window.
type Limiter interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Bot struct {
	token   string
	apiBase string
	store   UserStore
	supply  SupplyReader
	limiter Limiter
	logger  *slog.Logger
	client  *http.Client
	offset  int64
}

// NewBot builds a bot. store and limiter may be nil: without a store the
// account commands reply that linking is unavailable, without a limiter
// link codes are not rate limited.
func NewBot(token string, s UserStore, supply SupplyReader, limiter Limiter, logger *slog.Logger) *Bot {
	return &Bot{
		token:   token,
		apiBase: telegramAPI,
		store:   s,
		supply:  supply,
		limiter: limiter,
		logger:  logger,
		client:  &http.Client{Timeout: 40 * time.Second},
	}
}

// SendMessage sends a text message to a Telegram chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, _ := json.Marshal(payload)

	resp, err := b.client.Post(b.apiBase+b.token+"/sendMessage", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, errResp.Description)
	}
	return nil
}

// Run starts the long-polling loop for incoming Telegram messages.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			b.poll(ctx)
		}
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
		Text string `json:"text"`
	} `json:"message"`
}

func (b *Bot) poll(ctx context.Context) {
	url := fmt.Sprintf("%s%s/getUpdates?offset=%d&timeout=30", b.apiBase, b.token, b.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		b.logger.Error("create poll request", "error", err)
		return
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("poll updates", "error", err)
		sleep(ctx, 5*time.Second)
		return
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool     `json:"ok"`
		Description string   `json:"description"`
		Result      []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		b.logger.Error("decode updates", "status", resp.StatusCode, "error", err)
		sleep(ctx, 5*time.Second)
		return
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		// 401 means a bad token, 409 another poller on the same token.
		b.logger.Error("telegram rejected getUpdates", "status", resp.StatusCode, "description", result.Description)
		sleep(ctx, 5*time.Second)
		return
	}

	for _, u := range result.Result {
		b.offset = u.UpdateID + 1
		if u.Message == nil {
			continue
		}
		b.handle(ctx, u.Message.Chat.ID, u.Message.From.Username, u.Message.Text)
	}
}

func (b *Bot) handle(ctx context.Context, chatID int64, username, text string) {
	switch command(text) {
	case "/start":
		b.handleStart(ctx, chatID, username)
	case "/supply":
		b.handleSupply(chatID)
	case "/status":
		b.handleStatus(ctx, chatID)
	case "/help":
		b.handleHelp(chatID)
	default:
		_ = b.SendMessage(chatID, "Unknown command. Send /help for available commands.")
	}
}

// command strips arguments and the @botname suffix used in group chats.
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64, username string) {
	if b.store == nil {
		_ = b.SendMessage(chatID, "Account linking is not available right now.")
		return
	}
	if b.limiter != nil {
		ok, err := b.limiter.Acquire(ctx, "link:"+strconv.FormatInt(chatID, 10), linkCodeLimit)
		if err != nil {
			b.logger.Warn("link code rate limit unavailable", "chat_id", chatID, "error", err)
		} else if !ok {
			_ = b.SendMessage(chatID, "⏳ A link code was issued less than a minute ago. Please wait before requesting another.")
			return
		}
	}

	code := generateLinkCode()
	expiresAt := time.Now().Add(linkCodeTTL)

	if err := b.store.UpsertTelegramUser(ctx, chatID, username, code, expiresAt); err != nil {
		b.logger.Error("upsert telegram user", "error", err)
		_ = b.SendMessage(chatID, "❌ Error generating link code. Please try again.")
		return
	}

	msg := fmt.Sprintf("👋 Welcome to Ultrasound Monitor!\n\n"+
		"Your link code: <code>%s</code>\n\n"+
		"Enter this code on the dashboard to link your Telegram account and subscribe to the daily supply report.\n\n"+
		"⏰ This code expires in 10 minutes.", code)
	_ = b.SendMessage(chatID, msg)
}

func (b *Bot) handleSupply(chatID int64) {
	p, ok := b.supply.Projection()
	snap := b.supply.Latest()
	if !ok || snap == nil {
		_ = b.SendMessage(chatID, "No supply data yet. Try again in a few seconds.")
		return
	}
	msg := fmt.Sprintf("🦇🔊 <b>ETH supply</b>\n\n"+
		"%s ETH\n"+
		"Block %d · Slot %d\n"+
		"Updated %s UTC",
		monitor.FormatEth(p.EthSupply),
		snap.Supply.ExecutionBalancesSum.BlockNumber,
		snap.Supply.BeaconBalancesSum.Slot,
		p.ComputedAt.UTC().Format("15:04:05"))
	_ = b.SendMessage(chatID, msg)
}

func (b *Bot) handleHelp(chatID int64) {
	msg := "🤖 <b>Ultrasound Monitor Bot</b>\n\n" +
		"Commands:\n" +
		"/start - Get a link code to connect your Telegram\n" +
		"/supply - Show the current ETH supply\n" +
		"/status - Check your subscription status\n" +
		"/help - Show this message\n\n" +
		"Manage subscriptions on the web dashboard."
	_ = b.SendMessage(chatID, msg)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	if b.store == nil {
		_ = b.SendMessage(chatID, "Account linking is not available right now.")
		return
	}
	user, err := b.store.GetTelegramUser(ctx, chatID)
	if err != nil {
		_ = b.SendMessage(chatID, "You haven't linked your account yet. Send /start to get a link code.")
		return
	}

	if !user.Linked {
		_ = b.SendMessage(chatID, "Your account is registered but not linked yet. Send /start to get a new link code.")
		return
	}

	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		_ = b.SendMessage(chatID, "Error fetching subscriptions.")
		return
	}

	if len(subs) == 0 {
		_ = b.SendMessage(chatID, "✅ Account linked!\n\nYou have no active subscriptions. Visit the dashboard to subscribe to the supply report.")
		return
	}

	events, _ := b.store.ListEvents(ctx)
	eventMap := make(map[int]string)
	for _, e := range events {
		eventMap[e.ID] = e.Description
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Account linked! (@%s)\n\n📋 Active subscriptions:\n", user.TgUsername)
	for _, sub := range subs {
		desc := eventMap[sub.EventID]
		if desc == "" {
			desc = "Unknown event"
		}
		fmt.Fprintf(&sb, "• %s at %02d:00 UTC\n", desc, sub.ReportHour)
	}
	_ = b.SendMessage(chatID, sb.String())
}

func generateLinkCode() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
