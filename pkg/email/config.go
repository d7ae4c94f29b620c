package email

// Config holds email service configuration. Postmark tokens are optional so
// development environments can run with the log sender.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@confeitaria.app"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@confeitaria.app"`
}

// Enabled reports whether Postmark credentials are configured.
func (c Config) Enabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
