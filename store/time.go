package store

import "time"

// nowMilli is stubbed in tests that need a fixed clock.
var nowMilli = func() int64 { return time.Now().UnixMilli() }
