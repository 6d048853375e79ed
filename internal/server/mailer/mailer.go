// Package mailer queues outbound email. Messages go through an in-process
// buffered Dispatcher to a Producer, normally a Redis stream consumed by a
// separate delivery worker.
package mailer

import (
	"context"
	"fmt"
)

// Message is the payload handed to the delivery queue.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Producer publishes a message to the delivery queue.
type Producer interface {
	Publish(ctx context.Context, msg Message) error
}

// Sender is what services depend on: fire and forget.
type Sender interface {
	Send(ctx context.Context, msg Message)
}

func VerificationEmail(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Verify your email",
		Content: fmt.Sprintf("Confirm your email address by opening %s", link),
	}
}

func MFACodeEmail(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Your sign-in code",
		Content: fmt.Sprintf("Your verification code is %s", code),
	}
}
