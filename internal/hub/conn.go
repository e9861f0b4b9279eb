package hub

import "github.com/weiawesome/wes-io-chat/internal/domain"

// Conn is the transport-neutral view of a connection used by the registries.
// Send must never block: implementations drop or close on backpressure and
// report false.
type Conn interface {
	ID() string
	Session() *domain.Session
	Send(data []byte) bool
	Close(code int, reason string)
}
