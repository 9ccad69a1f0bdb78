package sendemail

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type EmailService interface {
	SendEmail(subject, toEmail, plainTextContent, htmlContent string) error
}

type emailService struct {
	client      *sendgrid.Client
	senderEmail string
	senderName  string
}

// NewEmailService returns a SendGrid sender, or a log-only sender when no
// API key is configured so local setups can still read OTP codes.
func NewEmailService(apiKey, senderEmail, senderName string, log *zap.Logger) EmailService {
	if apiKey == "" {
		return &logOnlyService{log: log}
	}
	return &emailService{
		client:      sendgrid.NewSendClient(apiKey),
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

func (e *emailService) SendEmail(subject, toEmail, plainTextContent, htmlContent string) error {
	from := mail.NewEmail(e.senderName, e.senderEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)
	resp, err := e.client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

type logOnlyService struct {
	log *zap.Logger
}

func (l *logOnlyService) SendEmail(subject, toEmail, plainTextContent, _ string) error {
	l.log.Info("email not sent, sendgrid disabled",
		zap.String("to", toEmail),
		zap.String("subject", subject),
		zap.String("body", plainTextContent),
	)
	return nil
}
