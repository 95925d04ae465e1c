// Package domain holds the validated value types for the subscription
// pipeline. SubscriberName and SubscriberEmail can only be obtained through
// their parse constructors, so every downstream consumer (storage, email
// delivery) receives already-valid values and never re-validates.
package domain
