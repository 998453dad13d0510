package graph

import "errors"

// GracefulError signals that the error handler exhausted its retries: the
// request was fully processed and the reply is a fixed apology. Transports
// must treat the message as consumed — publish the error, acknowledge, do
// not redeliver. Any other error escaping Invoke means processing crashed
// and the message is NOT considered processed (redeliver / surface 5xx).
//
// Keeping the distinction in the error identity rather than the reply string
// lets node code stay oblivious to transport semantics while giving each
// dispatcher the one bit it needs.
type GracefulError struct {
	Message string
}

func (e *GracefulError) Error() string {
	return e.Message
}

// AsGraceful unwraps err into a GracefulError if it is one.
func AsGraceful(err error) (*GracefulError, bool) {
	var g *GracefulError
	if errors.As(err, &g) {
		return g, true
	}
	return nil, false
}
