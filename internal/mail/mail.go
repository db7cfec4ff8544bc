// Package mail composes outbound account emails and hands them to a delivery queue.
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message kinds.
const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

// Message is one outbound email.
type Message struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Dispatcher enqueues messages for asynchronous delivery. Dispatch must not block on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// VerificationMessage builds the email carrying the verification link.
func VerificationMessage(to, link string) Message {
	return newMessage(KindVerification, to, "Email Verification Link",
		fmt.Sprintf("Click on this link: %s to verify your email", link))
}

// PasswordResetMessage builds the email carrying the password reset link.
func PasswordResetMessage(to, link string) Message {
	return newMessage(KindPasswordReset, to, "Password reset Link",
		fmt.Sprintf("Click on this link: %s to reset your password.", link))
}

func newMessage(kind, to, subject, body string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		To:        to,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}
