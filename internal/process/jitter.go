// SPDX-License-Identifier: MPL-2.0

package process

import (
	"math/rand/v2"
	"time"
)

// jitterSource backs the full-jitter backoff delay. Tests that need
// determinism should assert on attempt counts and bounds rather than exact
// delays, since jitter is randomized by design.
var jitterSource = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0xa5a5a5a5))
