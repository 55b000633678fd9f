package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/roshita-planner/internal/config"
	"github.com/jwalitptl/roshita-planner/internal/i18n"
	"github.com/jwalitptl/roshita-planner/internal/model"
)

type Service interface {
	SendFollowUpConfirmation(ctx context.Context, lang string, patient model.Patient, req model.FollowUpRequest) error
}

// ErrNoRecipient is returned when the patient has no email address.
var ErrNoRecipient = fmt.Errorf("patient has no email address")

type smtpService struct {
	from   string
	sender gomail.Sender
	dialer *gomail.Dialer
}

// NewSMTPService dials the configured server for every message.
func NewSMTPService(cfg config.EmailConfig) Service {
	return &smtpService{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// NewServiceWithSender sends through s, e.g. a pooled connection or a test double.
func NewServiceWithSender(from string, s gomail.Sender) Service {
	return &smtpService{from: from, sender: s}
}

func (s *smtpService) SendFollowUpConfirmation(ctx context.Context, lang string, patient model.Patient, req model.FollowUpRequest) error {
	if patient.Email == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	labels := i18n.For(lang, model.LanguageArabic)
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", patient.Email)
	m.SetHeader("Subject", labels.T(i18n.EmailSubject))
	m.SetBody("text/plain", fmt.Sprintf(labels.T(i18n.EmailBody),
		patient.FullName(), req.ReservationDate, req.StartTime, req.EndTime, req.ConfirmationCode))

	var err error
	if s.sender != nil {
		err = gomail.Send(s.sender, m)
	} else {
		err = s.dialer.DialAndSend(m)
	}
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

type noopService struct{}

// NewNoopService drops every message.
func NewNoopService() Service {
	return noopService{}
}

func (noopService) SendFollowUpConfirmation(context.Context, string, model.Patient, model.FollowUpRequest) error {
	return nil
}
