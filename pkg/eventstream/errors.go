package eventstream

import "errors"

// ErrNilItemEvent indicates a nil item event payload was provided to a publisher.
var ErrNilItemEvent = errors.New("nil item event")
