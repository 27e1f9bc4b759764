// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package orchestrator

import "time"

// pollDelay computes the exponential backoff before the next status check.
// polls is the number of checks already performed since submission, so the
// sequence is base, 2*base, 4*base, ... capped at max.
func pollDelay(polls int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}

	delay := base
	for i := 0; i < polls; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

// retryDelay computes the pause before an automatic resubmission.
// attempts is the number of submissions already made.
func retryDelay(attempts int, base, max time.Duration) time.Duration {
	return pollDelay(attempts, base, max)
}
