package clients

import "errors"

// ErrNotFound is returned by KV reads of missing or expired keys.
var ErrNotFound = errors.New("key not found")
