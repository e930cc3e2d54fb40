package provider

import (
	"context"
	"sync/atomic"

	"github.com/agentbot-ai/agentbot/internal/event"
	"github.com/agentbot-ai/agentbot/internal/store"
)

// FakeAvailability is a scriptable AvailabilityProvider for tests.
type FakeAvailability struct {
	LoginFunc func(ctx context.Context, session *store.SessionRecord) error
	CheckFunc func(ctx context.Context, session *store.SessionRecord) ([]event.Availability, error)

	loginCalls int64
	checkCalls int64
}

func (f *FakeAvailability) EnsureLogin(ctx context.Context, session *store.SessionRecord) error {
	atomic.AddInt64(&f.loginCalls, 1)
	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, session)
	}
	return nil
}

func (f *FakeAvailability) Check(ctx context.Context, session *store.SessionRecord) ([]event.Availability, error) {
	atomic.AddInt64(&f.checkCalls, 1)
	if f.CheckFunc != nil {
		return f.CheckFunc(ctx, session)
	}
	return nil, nil
}

func (f *FakeAvailability) LoginCalls() int { return int(atomic.LoadInt64(&f.loginCalls)) }
func (f *FakeAvailability) CheckCalls() int { return int(atomic.LoadInt64(&f.checkCalls)) }

// FakeBooking is a scriptable BookingProvider for tests.
type FakeBooking struct {
	BookFunc func(ctx context.Context, req event.BookingReq, session *store.SessionRecord) (event.BookingRes, error)

	bookCalls int64
}

func (f *FakeBooking) Book(ctx context.Context, req event.BookingReq, session *store.SessionRecord) (event.BookingRes, error) {
	atomic.AddInt64(&f.bookCalls, 1)
	if f.BookFunc != nil {
		return f.BookFunc(ctx, req, session)
	}
	return event.BookingRes{SessionID: req.SessionID, Success: true, Slot: req.Slot}, nil
}

func (f *FakeBooking) BookCalls() int { return int(atomic.LoadInt64(&f.bookCalls)) }

var (
	_ AvailabilityProvider = (*FakeAvailability)(nil)
	_ BookingProvider      = (*FakeBooking)(nil)
)
