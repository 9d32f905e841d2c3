package dblock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireIsExclusivePerName(t *testing.T) {
	release := Acquire("custody-test-lock")

	acquired := make(chan func(), 1)
	go func() { acquired <- Acquire("custody-test-lock") }()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while the lock was held")
	case <-time.After(150 * time.Millisecond):
	}

	release()
	select {
	case r := <-acquired:
		r()
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not handed over after release")
	}
}

func TestLockAddrIsStable(t *testing.T) {
	assert.Equal(t, lockAddr("postgres"), lockAddr("postgres"))
}
