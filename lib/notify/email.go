package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

type SmtpOptions struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
	To           string
}

// Email mirrors deliveries to a mailbox. It is meant as a secondary
// channel, one attempt per message.
type Email struct {
	config SmtpOptions
}

func NewEmail(config SmtpOptions) Email {
	return Email{config: config}
}

func (e Email) Notify(ctx context.Context, msg Message) error {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("OTP Relay <%s>", e.config.EmailAddress)
	mail.To = []string{e.config.To}
	mail.Subject = fmt.Sprintf("Code %s for %s", msg.Code, msg.Source)

	body := fmt.Sprintf(`Time: %s
Number: %s
Service: %s
Code: %s

%s`, msg.Time, msg.Source, msg.Channel, msg.Code, msg.Text)
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	return nil
}
