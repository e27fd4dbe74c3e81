package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"natours/internal/model"
)

// Mailer delivers account notifications out of band.
type Mailer interface {
	SendWelcome(ctx context.Context, user *model.User, url string) error
	// SendPasswordReset mails resetURL, which carries the plaintext reset
	// secret, to the user's registered address.
	SendPasswordReset(ctx context.Context, user *model.User, resetURL string) error
}

const (
	templateWelcome       = "welcome"
	templatePasswordReset = "password_reset"
)

const welcomeBody = `Hi {{.FirstName}},

Welcome to Natours, we're glad to have you!

Upload a photo and tell us a bit about yourself: {{.URL}}
`

const passwordResetBody = `Hi {{.FirstName}},

Forgot your password? Submit a PATCH request with your new password and
passwordConfirm to: {{.URL}}

This link is valid for {{.Valid}}. If you didn't forget your password,
please ignore this email.
`

var templates = func() *template.Template {
	t := template.Must(template.New(templateWelcome).Parse(welcomeBody))
	template.Must(t.New(templatePasswordReset).Parse(passwordResetBody))
	return t
}()

var subjects = map[string]string{
	templateWelcome:       "Welcome to the Natours family!",
	templatePasswordReset: "Your password reset token (valid for %s)",
}

type message struct {
	Template string
	To       string
	Subject  string
	Body     string
}

type templateData struct {
	FirstName string
	URL       string
	Valid     string
}

func render(name string, user *model.User, url string, valid time.Duration) (*message, error) {
	data := templateData{
		FirstName: firstName(user.Name),
		URL:       url,
		Valid:     humanize(valid),
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	subject := subjects[name]
	if strings.Contains(subject, "%s") {
		subject = fmt.Sprintf(subject, data.Valid)
	}
	return &message{Template: name, To: user.Email, Subject: subject, Body: buf.String()}, nil
}

func firstName(name string) string {
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short time"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
