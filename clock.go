// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

import "time"

// Clock is the wall-clock capability a Queue stamps every enqueued object
// with. SystemClock satisfies it directly from the standard library; tests
// typically supply a fixed-value stub instead.
type Clock interface {
	Now() int64
}

// SystemClock is the production Clock, seconds since the Unix epoch.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }
