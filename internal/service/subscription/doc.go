// Package subscription implements the subscription intake pipeline.
//
// The service layer owns the persist-then-notify orchestration for new
// subscribers. It depends on repository and sender interfaces defined in
// this package and should never import from api/.
//
// Repository implementations live in repository/postgres/; the sender is
// the email provider client.
package subscription
