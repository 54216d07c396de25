package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskboard/logging"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker"
)

var ErrMailUnavailable = errors.New("mail provider unavailable")

// Mailer delivers password reset codes.
type Mailer interface {
	SendResetCode(ctx context.Context, email, code string) error
}

// SendGridMailer sends through the SendGrid API behind a circuit breaker so a
// provider outage fails requests fast instead of tying up handlers.
type SendGridMailer struct {
	from    *mail.Email
	breaker *gobreaker.CircuitBreaker
	send    func(ctx context.Context, msg *mail.SGMailV3) (int, error)
}

func NewSendGridMailer(apiKey, fromAddress string) *SendGridMailer {
	client := sendgrid.NewSendClient(apiKey)
	m := &SendGridMailer{
		from: mail.NewEmail("Taskboard Support", fromAddress),
		send: func(ctx context.Context, msg *mail.SGMailV3) (int, error) {
			resp, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, err
			}
			return resp.StatusCode, nil
		},
	}
	m.breaker = newMailBreaker()
	return m
}

func newMailBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sendgrid",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Warnf("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from, to)
		},
	})
}

func (m *SendGridMailer) SendResetCode(ctx context.Context, email, code string) error {
	subject := "Password Reset Code"
	to := mail.NewEmail("", email)
	plainTextContent := fmt.Sprintf("Your password reset code is: %s. It expires in 15 minutes.", code)
	htmlContent := fmt.Sprintf("<strong>Your password reset code is: %s</strong><p>It expires in 15 minutes.</p>", code)
	message := mail.NewSingleEmail(m.from, subject, to, plainTextContent, htmlContent)

	_, err := m.breaker.Execute(func() (interface{}, error) {
		status, err := m.send(ctx, message)
		if err != nil {
			return nil, err
		}
		if status >= 300 {
			return nil, fmt.Errorf("sendgrid responded with status %d", status)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrMailUnavailable
	}
	return err
}

// LogMailer writes reset codes to the log. Used when no SendGrid key is configured.
type LogMailer struct{}

func (LogMailer) SendResetCode(_ context.Context, email, code string) error {
	logging.Logger.Warnf("Event ID: MAIL_DISABLED, Description: SENDGRID_API_KEY not set, reset code for %s is %s", email, code)
	return nil
}
