/*
Package transport lifts scope values out of inbound transports and writes
them back onto outbound ones.

There is one mapper per transport:

  - HTTPMapper: request headers, the W3C traceparent and baggage headers,
    and prefixed X-Baggage-* headers.
  - JobMapper: ad-hoc and scheduled background jobs that carry no headers.
  - MessagingMapper: flat message metadata with several historical key
    spellings per field.

Extraction is pure and never fails on malformed input: a bad correlation
header is replaced by a generated id and a bad baggage entry is skipped.
Every mapper also offers an Initialize convenience that extracts and
initializes a scope.Context in one step.
*/
package transport
