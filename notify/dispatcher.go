package notify

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
)

// Mailer is the opaque delivery capability behind the dispatcher.
type Mailer interface {
	Send(to, subject string, body []byte) error
}

// Dispatcher sends generated documents to users by email. Dispatch is
// fire-and-forget: outcomes are logged and never propagate to the business
// operation that triggered them.
type Dispatcher struct {
	mailer Mailer
	from   string
	logger *slog.Logger
	// async spawns each send in its own goroutine; disabled in tests so
	// assertions can run after the call returns.
	async bool
}

func NewDispatcher(mailer Mailer, from string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mailer: mailer,
		from:   from,
		logger: logger,
		async:  true,
	}
}

func (d *Dispatcher) WithSynchronousSend() *Dispatcher {
	d.async = false
	return d
}

// SendDocumentEmail delivers the file at filePath as an attachment. It
// returns immediately; failure is logged, never surfaced.
func (d *Dispatcher) SendDocumentEmail(recipient, subject, filePath string) {
	send := func() {
		body, err := buildAttachmentMessage(d.from, recipient, subject, filePath)
		if err != nil {
			d.logger.Error("notification build failed", "recipient", recipient, "file", filePath, "error", err)
			return
		}
		if err := d.mailer.Send(recipient, subject, body); err != nil {
			d.logger.Error("notification send failed", "recipient", recipient, "subject", subject, "error", err)
			return
		}
		d.logger.Info("notification sent", "recipient", recipient, "subject", subject, "file", filepath.Base(filePath))
	}

	if d.async {
		go send()
	} else {
		send()
	}
}

// buildAttachmentMessage assembles a minimal MIME message with the document
// attached.
func buildAttachmentMessage(from, to, subject, filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("notify: read attachment: %w", err)
	}

	filename := filepath.Base(filePath)
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	const boundary = "loadboard-doc-boundary"
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Please find %s attached.\r\n\r\n", filename)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: %s; name=%q\r\n", contentType, filename)
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", filename)
	b.WriteString(base64.StdEncoding.EncodeToString(content))
	fmt.Fprintf(&b, "\r\n--%s--\r\n", boundary)

	return []byte(b.String()), nil
}

// SMTPMailer is the default Mailer backed by a plain SMTP endpoint.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var a smtp.Auth
	if username != "" {
		a = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: a,
		from: from,
	}
}

func (m *SMTPMailer) Send(to, _ string, body []byte) error {
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, body); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}
