package mempool

import "errors"

// ErrLeaked is returned by Close when blocks were still outstanding.
var ErrLeaked = errors.New("mempool: blocks leaked")
