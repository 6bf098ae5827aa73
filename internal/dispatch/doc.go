// Package dispatch fans alerts out to the configured delivery channels.
// Every channel sits behind the same Sender contract and is invoked
// independently with a bounded timeout; a failing channel is logged and
// never prevents delivery on the others, and no delivery failure escalates
// past this package. Channels: SMTP email and slack/teams/generic-JSON
// webhooks.
package dispatch
