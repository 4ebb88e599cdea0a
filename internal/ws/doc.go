// Package ws carries scoped contexts over WebSocket messages.
//
// Every inbound message is handled in its own scope, initialized from the
// message metadata with the messaging key spellings (CorrelationId,
// correlation-id, X-Correlation-Id, baggage-*). Replies carry a child of
// that scope, so the reply's causation id is the operation that handled the
// message.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - context: Echo the scope the message was handled in
//   - any type registered with Handle
//
// Message Types (Server → Client):
//   - system: Sent once on connect
//   - pong: Reply to ping
//   - <type>.reply: Reply to a registered type
//   - error: Malformed message, unknown type or handler failure
//
// Example Usage:
//
//	handler := ws.NewHandler(runner, mapper, factory, metrics)
//	handler.Handle("invoice.create", createInvoice)
//	router.GET("/ws", handler.HandleConnection)
package ws
