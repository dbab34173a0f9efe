package logger

import (
	"bytes"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrorBuffer keeps a bounded copy of error and fatal log lines.
type ErrorBuffer struct {
	mu      sync.Mutex
	limit   int
	lines   []string
	dropped int
}

// NewErrorBuffer creates a buffer holding at most limit lines.
func NewErrorBuffer(limit int) *ErrorBuffer {
	if limit <= 0 {
		limit = 500
	}
	return &ErrorBuffer{limit: limit}
}

// Write is required by io.Writer; level-less writes are not captured.
func (b *ErrorBuffer) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel captures lines at error level and above.
func (b *ErrorBuffer) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel || level == zerolog.NoLevel || level == zerolog.Disabled {
		return len(p), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.limit {
		b.dropped++
		return len(p), nil
	}
	b.lines = append(b.lines, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Count returns the number of captured lines, including dropped ones.
func (b *ErrorBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines) + b.dropped
}

// Lines returns a copy of the captured lines.
func (b *ErrorBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// MailConfig describes the SMTP relay used for the exit-time error report.
type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	To        []string
	Subject   string
	Threshold int
}

// Enabled reports whether enough is configured to send mail.
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// sendMailFunc is swapped in tests.
var sendMailFunc = smtp.SendMail

// FlushErrors mails the captured error lines when their count reaches the
// configured threshold. It returns true when a mail was sent.
func FlushErrors(cfg MailConfig, buf *ErrorBuffer) (bool, error) {
	if buf == nil || !cfg.Enabled() {
		return false, nil
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 1
	}
	count := buf.Count()
	if count < threshold {
		return false, nil
	}

	msg := buildMessage(cfg, buf.Lines(), count)

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	if err := sendMailFunc(addr, auth, cfg.From, cfg.To, msg); err != nil {
		return false, fmt.Errorf("failed to send error report: %w", err)
	}
	return true, nil
}

func buildMessage(cfg MailConfig, lines []string, total int) []byte {
	subject := cfg.Subject
	if subject == "" {
		subject = "trinistocks pipeline errors"
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(cfg.To, ", "))
	fmt.Fprintf(&body, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&body, "Subject: %s (%d)\r\n", subject, total)
	fmt.Fprintf(&body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	body.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	for _, line := range lines {
		body.WriteString(line)
		body.WriteString("\r\n")
	}
	if total > len(lines) {
		fmt.Fprintf(&body, "... %d more lines dropped\r\n", total-len(lines))
	}
	return body.Bytes()
}
