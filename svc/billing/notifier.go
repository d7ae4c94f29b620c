package billing

import (
	"bytes"
	"context"
	"html/template"

	"github.com/dmitrymomot/confeitaria/pkg/email"
)

// Notifier is told about accounts whose subscription became active.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, email string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, email string) error

func (f NotifierFunc) SubscriptionActivated(ctx context.Context, email string) error {
	return f(ctx, email)
}

var activationTemplate = template.Must(template.New("activated").Parse(`<!doctype html>
<html>
<body>
<p>Hi {{.Email}},</p>
<p>Your {{.AppName}} subscription is active. You now have full access to orders, products and clients.</p>
{{if .AppURL}}<p><a href="{{.AppURL}}">Open {{.AppName}}</a></p>{{end}}
</body>
</html>`))

const activationTag = "subscription-activated"

// EmailNotifier sends the activation email through an email.EmailSender.
type EmailNotifier struct {
	sender  email.EmailSender
	appName string
	appURL  string
}

func NewEmailNotifier(sender email.EmailSender, appName, appURL string) *EmailNotifier {
	if appName == "" {
		appName = "Confeitaria"
	}
	return &EmailNotifier{sender: sender, appName: appName, appURL: appURL}
}

func (n *EmailNotifier) SubscriptionActivated(ctx context.Context, to string) error {
	var body bytes.Buffer
	err := activationTemplate.Execute(&body, struct {
		Email, AppName, AppURL string
	}{to, n.appName, n.appURL})
	if err != nil {
		return err
	}

	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  "Your " + n.appName + " subscription is active",
		BodyHTML: body.String(),
		Tag:      activationTag,
	})
}
