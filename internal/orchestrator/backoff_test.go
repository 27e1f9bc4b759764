// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollDelay_Growth(t *testing.T) {
	base := 2 * time.Second
	max := time.Minute

	assert.Equal(t, 2*time.Second, pollDelay(0, base, max))
	assert.Equal(t, 4*time.Second, pollDelay(1, base, max))
	assert.Equal(t, 8*time.Second, pollDelay(2, base, max))
	assert.Equal(t, 32*time.Second, pollDelay(4, base, max))
	assert.Equal(t, time.Minute, pollDelay(5, base, max))
	assert.Equal(t, time.Minute, pollDelay(50, base, max))
}

func TestPollDelay_Defaults(t *testing.T) {
	assert.Equal(t, time.Second, pollDelay(0, 0, 0))
	assert.Equal(t, 5*time.Second, pollDelay(3, 5*time.Second, time.Second))
}
