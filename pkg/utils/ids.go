package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenAccountID returns a process-unique account id. A nanosecond timestamp
// plus an atomic counter keeps ids sortable and collision-free within one
// process.
func GenAccountID() string {
	n := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("acct-%d-%06d", time.Now().UTC().UnixNano(), n)
}

// GenMessageID returns a process-unique message id.
func GenMessageID() string {
	n := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%06d", time.Now().UTC().UnixNano(), n)
}
