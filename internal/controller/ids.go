package controller

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

const clientOrderPrefix = "bc"

var orderSeq uint64

// newClientOrderID returns a compact id unique within the process. Binance
// accepts at most 36 characters from [A-Za-z0-9._:/-].
func newClientOrderID() string {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], atomic.AddUint64(&orderSeq, 1))
	return clientOrderPrefix + base62.EncodeToString(buf)
}

func newEventID() string {
	return uuid.NewString()
}
