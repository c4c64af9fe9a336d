package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"

	"SheetSend/internal/models"
)

// Message is one outgoing personalized email. Files are shared per-job
// attachments read from disk at send time; Inline parts are the base64
// images extracted from this row's body, referenced by cid from the HTML.
type Message struct {
	To      string
	Subject string
	HTML    string
	Files   []models.FileAttachment
	Inline  []models.InlineAttachment
}

type Sender struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromName  string
	FromEmail string
}

// Send builds the MIME message and delivers it over SMTP.
func (s *Sender) Send(msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}

	return nil
}

func (s *Sender) build(msg Message) (*gomail.Message, error) {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.FromEmail, s.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	for _, f := range msg.Files {
		m.Attach(f.Path, gomail.Rename(f.Filename))
	}

	for _, part := range msg.Inline {
		raw, err := base64.StdEncoding.DecodeString(part.Base64)
		if err != nil {
			return nil, fmt.Errorf("decode inline image %s: %w", part.ContentID, err)
		}
		m.Embed(part.ContentID,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(raw)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {part.ContentType}}),
		)
	}

	return m, nil
}

// Verify dials the SMTP server with exponential backoff, so a slow-starting
// relay next to us does not fail the boot check.
func (s *Sender) Verify(ctx context.Context) error {
	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	operation := func() error {
		conn, err := d.Dial()
		if err != nil {
			return err
		}
		return conn.Close()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
