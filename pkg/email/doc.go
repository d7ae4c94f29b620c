// Package email sends transactional emails through Postmark
// (github.com/mrz1836/postmark). Without Postmark credentials NewSender falls
// back to LogSender, which only logs what would have been sent.
//
//	sender, err := email.NewSender(cfg, log)
//	if err != nil {
//	    return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "baker@example.com",
//	    Subject:  "Your subscription is active",
//	    BodyHTML: html,
//	    Tag:      "subscription-activated",
//	})
//
// All senders validate parameters first and wrap failures in the sentinels of
// errors.go.
package email
