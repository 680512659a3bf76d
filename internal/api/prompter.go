package api

import (
	"context"

	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/submit"
)

type approvalKey struct{}

// WithPaymentApproval records the caller's answer to a payment prompt.
func WithPaymentApproval(ctx context.Context, approved bool) context.Context {
	return context.WithValue(ctx, approvalKey{}, approved)
}

// PaymentPrompter answers the payment prompt from the request that
// started the submission. Without an answer the payment is declined.
func PaymentPrompter() submit.Prompter {
	return submit.PromptFunc(func(ctx context.Context, _ backend.PaymentCheck, _ int) (bool, error) {
		approved, _ := ctx.Value(approvalKey{}).(bool)
		return approved, nil
	})
}
