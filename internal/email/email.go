package email

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
)

// Mailer delivers one-time codes. Implementations must be safe to call
// concurrently.
type Mailer interface {
	SendOTP(to, name, otp string) error
}

// Sender is an SMTP-backed Mailer.
type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewSender builds an SMTP sender. With an empty host the sender logs
// the mail instead of delivering it, which keeps local development
// working without an SMTP account.
func NewSender(host, port, username, password, from string) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

const otpTemplate = `
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px;">
        <h2>Your LogiTalk verification code</h2>
        <p>Hi {{.Name}},</p>
        <p>Your one-time code is:</p>
        <p style="font-size: 2em; letter-spacing: 0.2em; font-weight: bold;">{{.OTP}}</p>
        <p>It expires in 5 minutes. If you didn't request it, you can safely ignore this email.</p>
    </div>
</body>
</html>
`

// SendOTP mails the verification code to the address.
func (s *Sender) SendOTP(to, name, otp string) error {
	t, err := template.New("otp").Parse(otpTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, map[string]string{"Name": name, "OTP": otp}); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	headers := map[string]string{
		"From":         s.From,
		"To":           to,
		"Subject":      "Your LogiTalk verification code",
		"MIME-Version": "1.0",
		"Content-Type": `text/html; charset="UTF-8"`,
	}

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body.String()

	if s.Host == "" {
		log.Printf("mock otp email to=%s otp=%s", to, otp)
		return nil
	}

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(message))
}
