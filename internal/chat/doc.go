// Package chat implements the chat delivery protocol on top of one
// registry connection: duplicate-send suppression, pending-message
// tracking with acknowledgment reconciliation, read receipts, typing
// indicators with an explicit debouncer, peer typing presence, and a
// message projection that stays consistent when acks and receipts arrive
// out of order.
package chat
