// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// Template names used across the identity flows.
const (
	TemplateVerificationEmail     = "verification_email"
	TemplateTwoFactorLoginCode    = "two_factor_login_code"
	TemplateTwoFactorSetupCode    = "two_factor_setup_code"
	TemplatePasswordReset         = "password_reset"
	TemplatePasswordChangedNotice = "password_changed_notice"
	TemplateLockoutNotice         = "lockout_notice"
	TemplateTwoFactorDisabled     = "two_factor_disabled_notice"
	TemplateTwoFactorAdminReset   = "two_factor_admin_reset_notice"
	TemplateWelcome               = "welcome"
)

// ErrTemplateNotFound marks a permanently undeliverable job: retrying cannot
// conjure a missing template into existence.
var ErrTemplateNotFound = errors.New("mail: template not found")

// Plain-text bodies. The frontend owns HTML mail; the backend sends text.
var templateBodies = map[string]string{
	TemplateVerificationEmail: `Hi {{.Name}},

Welcome to Yomira. Confirm your email address with this link:

{{.VerificationLink}}

Or enter this code in the app: {{.Code}}

The link and code expire in 24 hours. If you did not create this account,
you can ignore this message.`,

	TemplateTwoFactorLoginCode: `Hi {{.Name}},

Your sign-in code is: {{.Code}}

It expires in 10 minutes. If you did not try to sign in, change your
password now.`,

	TemplateTwoFactorSetupCode: `Hi {{.Name}},

Your code to enable email two-factor authentication is: {{.Code}}

It expires in 10 minutes.`,

	TemplatePasswordReset: `Hi {{.Name}},

Reset your password with this link:

{{.ResetLink}}

Or enter this code in the app: {{.Code}}

The link and code expire in 30 minutes. If you did not request a reset,
you can ignore this message.`,

	TemplatePasswordChangedNotice: `Hi {{.Name}},

Your password was just changed and all other sessions were signed out.
If this was not you, contact support immediately.`,

	TemplateLockoutNotice: `Hi {{.Name}},

Your account was temporarily locked after repeated failed sign-in
attempts. You can try again in {{.LockoutMinutes}} minutes. If this was
not you, consider changing your password once the lock lifts.`,

	TemplateTwoFactorDisabled: `Hi {{.Name}},

Two-factor authentication was disabled on your account. If this was not
you, re-enable it and change your password immediately.`,

	TemplateTwoFactorAdminReset: `Hi {{.Name}},

Two-factor authentication on your account was reset by administrator
{{.AdminName}}. You will be asked to set it up again at your next
sign-in.`,

	TemplateWelcome: `Hi {{.Name}},

Your email address is confirmed — welcome aboard! Head over to
{{.AppLink}} to get started.`,
}

// TemplateRegistry renders outbox jobs into plain-text bodies.
type TemplateRegistry struct {
	templates *template.Template
}

// NewTemplateRegistry parses the built-in template set. Parsing happens once
// at startup; a malformed template is a programmer error and aborts boot.
func NewTemplateRegistry() (*TemplateRegistry, error) {
	root := template.New("mail")
	for name, body := range templateBodies {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("mail: failed to parse template %s: %w", name, err)
		}
	}
	return &TemplateRegistry{templates: root}, nil
}

/*
Render executes a named template against the job's data.

Parameters:
  - name: string (template name)
  - data: map[string]string (template variables)

Returns:
  - string: Rendered plain-text body
  - error: ErrTemplateNotFound for unknown names, or execution failures
*/
func (registry *TemplateRegistry) Render(name string, data map[string]string) (string, error) {
	selected := registry.templates.Lookup(name)
	if selected == nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var builder strings.Builder
	if err := selected.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("mail: failed to render template %s: %w", name, err)
	}

	return builder.String(), nil
}
