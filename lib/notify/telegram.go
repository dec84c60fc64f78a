package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"otprelay-backend/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("notify/telegram")

var ErrDeliveryFailed = fmt.Errorf("failed to deliver notification")

// the destination renders MarkdownV2, every reserved character in the
// raw text has to be escaped or a stray underscore in an SMS body
// breaks the whole message
var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"<", "\\<",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

func EscapeMarkdownV2(s string) string {
	return markdownEscaper.Replace(s)
}

const defaultTelegramBaseUrl = "https://api.telegram.org"

type TelegramOptions struct {
	Token  string
	ChatId string
	// BaseUrl defaults to the public bot api
	BaseUrl string
	// Attempts defaults to 3, Backoff to 2s
	Attempts int
	Backoff  time.Duration
}

type Telegram struct {
	http     *resty.Client
	sendPath string
	chatId   string
	attempts int
	backoff  time.Duration
}

func NewTelegram(opts TelegramOptions) *Telegram {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = defaultTelegramBaseUrl
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second * 2
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetTimeout(time.Second * 30)
	restyutil.InstrumentClient(client, otel.Tracer("notify/telegram/http"), nil)

	return &Telegram{
		http:     client,
		sendPath: fmt.Sprintf("/bot%s/sendMessage", opts.Token),
		chatId:   opts.ChatId,
		attempts: attempts,
		backoff:  backoff,
	}
}

func formatMessage(msg Message) string {
	var b strings.Builder
	b.WriteString("🔐 *New code received*\n")
	fmt.Fprintf(&b, "🕐 Time: %s\n", EscapeMarkdownV2(msg.Time))
	fmt.Fprintf(&b, "📞 Number: %s\n", EscapeMarkdownV2(msg.Source))
	if msg.Channel != "" {
		fmt.Fprintf(&b, "📡 Service: %s\n", EscapeMarkdownV2(msg.Channel))
	}
	// the code is digits only, safe inside a code span
	fmt.Fprintf(&b, "🔑 Code: `%s`\n", msg.Code)
	fmt.Fprintf(&b, "💬 Message: %s", EscapeMarkdownV2(msg.Text))
	return b.String()
}

func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	ctx, span := tracer.Start(ctx, "telegram:Notify")
	defer span.End()

	text := formatMessage(msg)

	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(t.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := t.send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.WarnContext(
			ctx, "telegram delivery attempt failed",
			"attempt", attempt,
			"err", err,
		)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "delivery failed")
	return fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

func (t *Telegram) send(ctx context.Context, text string) error {
	res, err := t.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":    t.chatId,
			"text":       text,
			"parse_mode": "MarkdownV2",
		}).
		Post(t.sendPath)
	if err != nil {
		return err
	}

	var result struct {
		Ok          bool   `json:"ok"`
		Description string `json:"description"`
	}
	// the api reports errors both ways, as a non-200 status and as
	// ok=false in the body
	jsonErr := json.Unmarshal(res.Body(), &result)
	if !res.IsSuccess() {
		return fmt.Errorf("sendMessage returned status %d: %s", res.StatusCode(), result.Description)
	}
	if jsonErr != nil {
		return fmt.Errorf("sendMessage returned an unparseable body: %v", jsonErr)
	}
	if !result.Ok {
		return fmt.Errorf("sendMessage rejected: %s", result.Description)
	}
	return nil
}
