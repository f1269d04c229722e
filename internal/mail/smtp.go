// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// Message is one rendered, ready-to-send email.
type Message struct {
	FromName  string
	FromEmail string
	ToName    string
	ToEmail   string
	Subject   string
	TextBody  string
}

// Sender delivers a rendered message over a mail transport.
type Sender interface {
	Send(message Message) error
}

// SMTPSettings configures the outbound SMTP relay connection.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSMode is one of "tls" (implicit), "starttls" (default), or "none".
	TLSMode string
}

// SMTPSender implements Sender against a standard SMTP relay.
type SMTPSender struct {
	settings SMTPSettings
}

// NewSMTPSender constructs a relay-backed [Sender].
func NewSMTPSender(settings SMTPSettings) *SMTPSender {
	return &SMTPSender{settings: settings}
}

/*
Send delivers one message synchronously over SMTP.

Description: Dials per message. The dispatcher throttles sends, so connection
reuse buys little and a fresh dial keeps failure handling simple.

Parameters:
  - message: Message

Returns:
  - error: Connection, auth, or protocol failures (transient from the
    dispatcher's point of view)
*/
func (sender *SMTPSender) Send(message Message) error {
	address := fmt.Sprintf("%s:%d", sender.settings.Host, sender.settings.Port)

	client, err := sender.connect(address)
	if err != nil {
		return err
	}
	defer client.Close()

	if sender.settings.Username != "" {
		auth := smtp.PlainAuth("", sender.settings.Username, sender.settings.Password, sender.settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp_auth_failed: %w", err)
		}
	}

	if err := client.Mail(message.FromEmail); err != nil {
		return fmt.Errorf("smtp_mail_from_failed: %w", err)
	}
	if err := client.Rcpt(message.ToEmail); err != nil {
		return fmt.Errorf("smtp_rcpt_failed: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp_data_failed: %w", err)
	}

	if _, err := writer.Write([]byte(buildMessage(message))); err != nil {
		return fmt.Errorf("smtp_write_failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp_close_failed: %w", err)
	}

	if err := client.Quit(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return fmt.Errorf("smtp_quit_failed: %w", err)
	}

	return nil
}

// connect dials the relay honoring the configured TLS mode.
func (sender *SMTPSender) connect(address string) (*smtp.Client, error) {
	tlsConfig := &tls.Config{ServerName: sender.settings.Host, MinVersion: tls.VersionTLS12}

	switch sender.settings.TLSMode {
	case "tls":
		conn, err := tls.Dial("tcp", address, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("smtp_tls_dial_failed: %w", err)
		}
		client, err := smtp.NewClient(conn, sender.settings.Host)
		if err != nil {
			return nil, fmt.Errorf("smtp_client_failed: %w", err)
		}
		return client, nil

	default:
		client, err := smtp.Dial(address)
		if err != nil {
			return nil, fmt.Errorf("smtp_dial_failed: %w", err)
		}
		if sender.settings.TLSMode != "none" {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("smtp_starttls_failed: %w", err)
			}
		}
		return client, nil
	}
}

// buildMessage assembles the RFC 5322 wire format.
func buildMessage(message Message) string {
	from := message.FromEmail
	if message.FromName != "" {
		from = fmt.Sprintf("%s <%s>", message.FromName, message.FromEmail)
	}

	to := message.ToEmail
	if message.ToName != "" {
		to = fmt.Sprintf("%s <%s>", message.ToName, message.ToEmail)
	}

	lines := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + message.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		message.TextBody,
	}

	return strings.Join(lines, "\r\n")
}
