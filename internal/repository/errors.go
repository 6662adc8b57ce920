// Package repository defines error values that are reused across
// multiple repositories. These sentinel values allow higher layers
// such as handlers to distinguish between different failure
// scenarios and map them to machine-readable HTTP responses. For
// example, ErrInsufficientInventory indicates that a decrement would
// drive a counter negative, while ErrPayoutAccountNotLinked signals
// that checkout cannot proceed for an organizer without a linked
// payout account.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrEmailExists is returned when registration collides with an
// existing email address. Handlers translate this to HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrEventNotFound is returned when an event id does not resolve to
// a row. Handlers translate this to HTTP 404.
var ErrEventNotFound = errors.New("event not found")

// ErrInvalidExternalAccountFormat is returned when a candidate payout
// account reference does not match the processor's account id shape.
var ErrInvalidExternalAccountFormat = errors.New("invalid external account format")

// ErrPayoutAccountAlreadyLinked is returned when an identity that
// already carries a payout account reference is asked to link a
// different one. The existing reference is authoritative and is
// never overwritten.
var ErrPayoutAccountAlreadyLinked = errors.New("payout account already linked")

// ErrPayoutAccountNotLinked is returned when checkout is attempted
// against an organizer that has no linked payout account. Handlers
// translate this to HTTP 409 with the error kind in the body.
var ErrPayoutAccountNotLinked = errors.New("payout account not linked")

// ErrExternalVerificationFailed is returned when the payment
// processor cannot confirm that a candidate account exists. It is
// non-fatal during link recovery: the failing channel is skipped and
// the next one is tried.
var ErrExternalVerificationFailed = errors.New("external verification failed")

// ErrOrderTotalTooLarge is returned when a purchase intent's gross
// amount exceeds the single-charge ceiling. Handlers translate this
// to HTTP 400.
var ErrOrderTotalTooLarge = errors.New("order total exceeds single-charge limit")

// ErrInsufficientInventory is returned when a decrement would leave
// a counter below zero. The counter is left untouched.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrWebhookSignatureInvalid is returned when a webhook payload's
// signature does not match the configured shared secret. The request
// is rejected outright with HTTP 400.
var ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")

// ErrAttemptConsumed is returned when a pending link attempt has
// already been applied or has expired. Callers treat it as "nothing
// to recover" and fall through to the next recovery channel.
var ErrAttemptConsumed = errors.New("link attempt consumed or expired")
