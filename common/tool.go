package common

import "time"

// ComputeCurrentTimestamp is the wall clock in unix seconds, as stamped on new blocks.
func ComputeCurrentTimestamp() uint32 {
	return uint32(time.Now().Unix())
}
