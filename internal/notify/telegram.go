package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// markdownV2Escaper escapes the characters Telegram's MarkdownV2 parser
// reserves, leaving '*' and '`' intact so bold and code spans still render.
var markdownV2Escaper = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"-", `\-`,
	"(", `\(`,
	")", `\)`,
	"!", `\!`,
	"+", `\+`,
	"=", `\=`,
	"|", `\|`,
	"{", `\{`,
	"}", `\}`,
	"#", `\#`,
	"$", `\$`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"~", `\~`,
	">", `\>`,
)

// EscapeMarkdownV2 escapes text for parse_mode=MarkdownV2.
func EscapeMarkdownV2(text string) string {
	return markdownV2Escaper.Replace(text)
}

// TelegramOption customises a TelegramSender.
type TelegramOption func(*TelegramSender)

// WithTelegramProxy routes Bot API calls through an HTTP(S) or SOCKS5 proxy.
func WithTelegramProxy(proxyURL string) TelegramOption {
	return func(t *TelegramSender) {
		if proxyURL == "" {
			return
		}
		t.proxyURL = proxyURL
	}
}

// WithTelegramAPI overrides the Bot API base URL.
func WithTelegramAPI(baseURL string) TelegramOption {
	return func(t *TelegramSender) { t.apiBase = strings.TrimRight(baseURL, "/") }
}

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token    string
	chatID   string
	apiBase  string
	proxyURL string
	client   *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. An invalid proxy URL is reported here rather than on first send.
func NewTelegramSender(token, chatID string, opts ...TelegramOption) (*TelegramSender, error) {
	t := &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: defaultTelegramAPI,
	}
	for _, opt := range opts {
		opt(t)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if t.proxyURL != "" {
		u, err := url.Parse(t.proxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("telegram: invalid proxy url %q", t.proxyURL)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	t.client = &http.Client{Timeout: 10 * time.Second, Transport: transport}
	return t, nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send posts title (bold) and message to the chat as MarkdownV2.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := EscapeMarkdownV2(message)
	if title != "" {
		text = "*" + EscapeMarkdownV2(title) + "*\n" + text
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
