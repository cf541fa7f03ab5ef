// Copyright 2026 The go-bkboot Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bkboot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 1.5,
		RetryTimeout:      time.Second,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		calls++
		if calls < 3 {
			return ErrNoResponse
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	t.Parallel()
	calls := 0
	wantErr := errors.New("permission denied")
	err := RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(4), func() error {
		calls++
		return ErrNoResponse
	})
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 4, calls)
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithConfig(context.Background(), &RetryConfig{MaxAttempts: 0}, func() error {
		calls++
		return ErrNoResponse
	})
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithConfig(ctx, fastRetryConfig(100), func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return ErrNoResponse
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 3)
}

func TestRetryTimeoutCapsTotalDuration(t *testing.T) {
	t.Parallel()
	cfg := &RetryConfig{
		MaxAttempts:       1000,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 1,
		RetryTimeout:      30 * time.Millisecond,
	}
	start := time.Now()
	err := RetryWithConfig(context.Background(), cfg, func() error {
		return ErrNoResponse
	})
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestJitteredSleepStaysInRange(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		sleep := calculateJitteredSleep(base, 0.1)
		assert.GreaterOrEqual(t, sleep, base)
		assert.LessOrEqual(t, sleep, base+base/10)
	}
	assert.Equal(t, base, calculateJitteredSleep(base, 0))
}
