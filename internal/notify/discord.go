package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// discordLimit is the webhook content length cap.
const discordLimit = 2000

// Send posts a message to the Discord webhook. Single-asterisk bold markers
// are widened to Discord's double form.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := toDiscordMarkdown(message)
	if title != "" {
		content = fmt.Sprintf("**%s**\n%s", title, content)
	}
	if r := []rune(content); len(r) > discordLimit {
		content = string(r[:discordLimit-1]) + "…"
	}

	payload := map[string]string{
		"content": content,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

// toDiscordMarkdown turns single-asterisk *bold* spans into **bold**. Spans
// must open and close on one line; doubled asterisks, unpaired asterisks and
// anything inside backticks are left as they are.
func toDiscordMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	inCode := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '`':
			inCode = !inCode
		case c == '*' && !inCode && loneStar(s, i):
			if j := closingStar(s, i); j > 0 {
				b.WriteString("**")
				b.WriteString(s[i+1 : j])
				b.WriteString("**")
				i = j
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func loneStar(s string, i int) bool {
	return (i == 0 || s[i-1] != '*') && (i+1 >= len(s) || s[i+1] != '*')
}

// closingStar returns the index of the lone '*' closing the span opened at i,
// or -1 when the line or a code span ends first.
func closingStar(s string, i int) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\n', '`':
			return -1
		case '*':
			if !loneStar(s, j) {
				return -1
			}
			return j
		}
	}
	return -1
}
