// Package notify delivers feed failure notifications to Slack, Teams or
// generic HTTP webhooks. Webhook URLs are resolved from the environment at
// send time; targets without a URL are skipped. Delivery errors are logged
// and never returned to the caller.
package notify
