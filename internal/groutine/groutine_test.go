package groutine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoNamesGoroutine(t *testing.T) {
	names := make(chan string, 1)
	Go(nil, "moment-test", func(ctx context.Context) {
		names <- GetName(ctx)
	})
	assert.Equal(t, "moment-test", <-names)
}

func TestGetNameWithoutLabel(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Equal(t, "", GetName(nil))
}

func TestGroupWaitsForNestedGoroutines(t *testing.T) {
	var g Group
	var count atomic.Int32

	g.Go(context.Background(), "outer", func(ctx context.Context) {
		count.Add(1)
		g.Go(ctx, "inner", func(context.Context) {
			count.Add(1)
		})
	})

	g.Wait()
	assert.Equal(t, int32(2), count.Load(), "Wait MUST cover goroutines started by tracked goroutines")
}

func TestGroupClosedRejectsGoroutines(t *testing.T) {
	var g Group
	var ran atomic.Bool

	g.Close()
	started := g.Go(context.Background(), "late", func(context.Context) {
		ran.Store(true)
	})
	g.Wait()

	assert.False(t, started, "closed group MUST NOT start goroutines")
	assert.False(t, ran.Load())
}

func TestGroupWaitConcurrentWithGo(t *testing.T) {
	// GOAL: Verify goroutines can be added from untracked goroutines while another goroutine waits
	//
	// TEST SCENARIO: many external goroutines call Go while Wait loops → every tracked goroutine runs → no panic

	var g Group
	var count atomic.Int32
	var callers sync.WaitGroup
	stop := make(chan struct{})
	waiterDone := make(chan struct{})

	go func() {
		defer close(waiterDone)
		for {
			select {
			case <-stop:
				return
			default:
				g.Wait()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		callers.Add(1)
		go func() {
			defer callers.Done()
			assert.True(t, g.Go(context.Background(), "external", func(context.Context) {
				count.Add(1)
			}))
		}()
	}
	callers.Wait()
	g.Wait()
	close(stop)
	<-waiterDone

	assert.Equal(t, int32(50), count.Load(), "every started goroutine MUST be waited for")
}
