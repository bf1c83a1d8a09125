package notifications

import (
	"context"
	"sync"

	"github.com/wneessen/go-mail"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/config"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

// SMTPSender delivers email over SMTP
type SMTPSender struct {
	mu       sync.Mutex
	client   *mail.Client
	from     string
	fromName string
}

// NewSMTPSender creates an SMTP email sender. Auth is only negotiated when a
// username is configured.
func NewSMTPSender(smtp config.SMTPConfig, from, fromName string) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(smtp.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtp.Username),
			mail.WithPassword(smtp.Password),
		)
	}

	client, err := mail.NewClient(smtp.Host, opts...)
	if err != nil {
		return nil, apperrors.NewInternalError("could not initialize smtp client", err)
	}

	return &SMTPSender{client: client, from: from, fromName: fromName}, nil
}

// Send delivers a plain-text email
func (s *SMTPSender) Send(ctx context.Context, msg *entities.Message) error {
	m, err := buildMailMsg(s.from, s.fromName, msg)
	if err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return apperrors.NewExternalError("smtp send failed", err)
	}
	return nil
}

func buildMailMsg(from, fromName string, msg *entities.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(fromName, from); err != nil {
		return nil, err
	}
	if err := m.To(msg.Recipient); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
