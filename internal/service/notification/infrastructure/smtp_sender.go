// internal/service/notification/infrastructure/smtp_sender.go
package infrastructure

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Abbracx/loan-be/internal/service/notification/domain"
)

const smtpTimeout = 10 * time.Second

// SMTPSender 通过 SMTP 投递邮件，Username 为空时不做认证。
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	now      func() time.Time
}

func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{host: host, port: port, username: username, password: password, now: time.Now}
}

var _ domain.EmailSender = (*SMTPSender)(nil)

func (s *SMTPSender) Send(ctx context.Context, email *domain.Email) error {
	if len(email.To) == 0 {
		return errors.New("smtp: no recipients")
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	dialer := &net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial smtp %s", addr)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = s.now().Add(smtpTimeout)
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "smtp handshake")
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return errors.Wrap(err, "smtp STARTTLS")
		}
	}
	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return errors.Wrap(err, "smtp auth")
		}
	}
	if err := c.Mail(email.From); err != nil {
		return errors.Wrap(err, "smtp MAIL FROM")
	}
	for _, rcpt := range email.To {
		if err := c.Rcpt(rcpt); err != nil {
			return errors.Wrapf(err, "smtp RCPT TO %s", rcpt)
		}
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "smtp DATA")
	}
	if _, err := w.Write(buildMessage(email, s.now())); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "write message")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "finish message")
	}
	return c.Quit()
}

// buildMessage 生成纯文本 MIME 邮件，正文换行统一为 CRLF。
func buildMessage(email *domain.Email, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", email.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(email.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", email.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(email.Body, "\n", "\r\n"))
	return b.Bytes()
}
