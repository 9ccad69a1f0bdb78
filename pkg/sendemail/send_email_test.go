package sendemail

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureService struct {
	subject, to, plain, html string
}

func (c *captureService) SendEmail(subject, toEmail, plainTextContent, htmlContent string) error {
	c.subject, c.to, c.plain, c.html = subject, toEmail, plainTextContent, htmlContent
	return nil
}

func TestNewEmailService_WithoutKeyLogsOnly(t *testing.T) {
	s := NewEmailService("", "", "", zap.NewNop())
	_, ok := s.(*logOnlyService)
	require.True(t, ok)
	require.NoError(t, s.SendEmail("s", "a@example.com", "p", "h"))
}

func TestOTPMessage(t *testing.T) {
	m := OTPMessage("123456", 10)
	require.Contains(t, m.Plain, "123456")
	require.Contains(t, m.Plain, "10 minutes")
	require.Contains(t, m.HTML, "123456")
}

func TestNotificationMessage_EscapesAndLinks(t *testing.T) {
	c := &captureService{}
	require.NoError(t, Send(c, "b@example.com", NotificationMessage("Sold <b>", "Your item sold", "https://x.test/media/1")))

	require.Equal(t, "b@example.com", c.to)
	require.Equal(t, "Sold <b>", c.subject)
	require.Contains(t, c.html, "Sold &lt;b&gt;")
	require.Contains(t, c.plain, "https://x.test/media/1")
}
