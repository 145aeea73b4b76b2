// Package batch turns raw provider payloads into series.Table batches and
// decides whether a batch is complete enough to be trusted.
//
// ParseCallback handles the padded-callback (JSONP) bandwidth payload whose
// "json" field is itself a JSON-encoded series list. ParseSeriesList handles
// the plain series list served for support requests. Both return errors
// wrapping ErrUnparseable when the payload cannot be located or decoded.
//
// Complete checks a batch's column set against the expected categories.
package batch
