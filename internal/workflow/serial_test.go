package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-approval/internal/domain"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

func TestFormatSerial(t *testing.T) {
	assert.Equal(t, "202401010001", FormatSerial("20240101", 1))
	assert.Equal(t, "202401019999", FormatSerial("20240101", 9999))
	assert.Equal(t, "2024010110000", FormatSerial("20240101", 10000))
}

func TestSerialPrefixUsesLocation(t *testing.T) {
	shanghai := time.FixedZone("UTC+8", 8*60*60)
	alloc := NewSerialAllocator(nil, shanghai)

	late := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "20240102", alloc.Prefix(late))
	assert.Equal(t, "20240101", NewSerialAllocator(nil, nil).Prefix(late))
}

func TestSerialNext(t *testing.T) {
	ctx := context.Background()
	alloc := NewSerialAllocator(nil, time.UTC)

	cases := []struct {
		name     string
		existing []string
		want     string
	}{
		{name: "first of day", want: "202401010001"},
		{name: "after latest", existing: []string{"202401010001", "202401010007"}, want: "202401010008"},
		{name: "other days ignored", existing: []string{"202312310042"}, want: "202401010001"},
		{name: "past four digits", existing: []string{"202401019999"}, want: "2024010110000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			for i, serial := range tc.existing {
				s := serial
				ticket := domain.NewTicket(fmt.Sprintf("t%d", i), domain.TicketTypeGeneral, "a", "", "")
				ticket.SerialNum = &s
				store.addTicket(ticket)
			}
			var got string
			err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				var err error
				got, err = alloc.Next(ctx, tx, jan1)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSerialNextRejectsMalformedLatest(t *testing.T) {
	store := newMemStore()
	store.latestSerial = func(prefix string) string { return prefix + "abcd" }
	alloc := NewSerialAllocator(nil, time.UTC)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := alloc.Next(ctx, tx, jan1)
		return err
	})
	assert.Error(t, err)
}

func TestLocalLockerExcludes(t *testing.T) {
	locker := NewLocalLocker(0)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := locker.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestReserveMapsTimeoutToRetry(t *testing.T) {
	locker := NewLocalLocker(0)
	alloc := NewSerialAllocator(locker, time.UTC)
	unlock, err := alloc.Reserve(context.Background(), jan1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = alloc.Reserve(ctx, jan1)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestLocalLockerGivesUpAfterWait(t *testing.T) {
	alloc := NewSerialAllocator(NewLocalLocker(20*time.Millisecond), time.UTC)
	unlock, err := alloc.Reserve(context.Background(), jan1)
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = alloc.Reserve(context.Background(), jan1)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Less(t, time.Since(start), time.Second)
}
