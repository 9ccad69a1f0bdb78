package sendemail

import (
	"fmt"
	"html"
)

// Message is a rendered email ready for EmailService.SendEmail.
type Message struct {
	Subject string
	Plain   string
	HTML    string
}

const wrapper = `<div style="font-family: Arial, sans-serif; padding: 20px;">%s</div>`

func OTPMessage(code string, ttlMinutes int) Message {
	return Message{
		Subject: "Your Neural Salvage verification code",
		Plain:   fmt.Sprintf("Your verification code is: %s. This code will expire in %d minutes.", code, ttlMinutes),
		HTML: fmt.Sprintf(wrapper, fmt.Sprintf(`
			<h2>Your verification code</h2>
			<div style="font-size: 24px; font-weight: bold; color: #333; padding: 10px; background-color: #f5f5f5; border-radius: 5px; display: inline-block;">%s</div>
			<p>This code will expire in %d minutes.</p>
			<p>If you didn't request this code, please ignore this email.</p>`, html.EscapeString(code), ttlMinutes)),
	}
}

// NotificationMessage renders an in-app notification as an email with an optional link.
func NotificationMessage(title, body, link string) Message {
	plain := body
	cta := ""
	if link != "" {
		plain += "\n\n" + link
		cta = fmt.Sprintf(`<p><a href="%s">View on Neural Salvage</a></p>`, html.EscapeString(link))
	}
	return Message{
		Subject: title,
		Plain:   plain,
		HTML:    fmt.Sprintf(wrapper, fmt.Sprintf("<h2>%s</h2><p>%s</p>%s", html.EscapeString(title), html.EscapeString(body), cta)),
	}
}

// Send delivers m through s.
func Send(s EmailService, to string, m Message) error {
	return s.SendEmail(m.Subject, to, m.Plain, m.HTML)
}
