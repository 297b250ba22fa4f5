package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
)

// ErrBusy is returned when a per-aggregate lock could not be acquired before
// the wait deadline.
var ErrBusy = apperror.User("record_locked", "record is being modified by another operation, retry later")

// Locker serializes state transitions per aggregate. Every transition of a
// BOQ, certificate or variation runs under the lock of the BOQ it writes to.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// BoqKey is the lock key covering every ledger write of one BOQ.
func BoqKey(boqID snowflake.ID) string {
	return fmt.Sprintf("boq:lock:%s", boqID.String())
}

const (
	defaultTTL  = 30 * time.Second
	defaultWait = 10 * time.Second
	retryEvery  = 50 * time.Millisecond
)
