package hold

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/professional"
	"github.com/citaflow/booking-backend/internal/timerange"
)

// fakeRepository emulates the store-side claim protocol, including the
// atomicity a real transaction provides, so races can be exercised in-memory.
type fakeRepository struct {
	mu      sync.Mutex
	holds   []*Hold
	booked  []timerange.TimeRange
	nextID  int
	deleted int64
}

func (f *fakeRepository) CreateExclusive(ctx context.Context, h *Hold, now time.Time) (*Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range f.booked {
		if h.Range.Overlaps(b) {
			return nil, ErrSlotBooked
		}
	}
	for _, existing := range f.holds {
		if existing.ProfessionalID != h.ProfessionalID || !existing.Active(now) {
			continue
		}
		if existing.SessionID != h.SessionID && existing.Range.Overlaps(h.Range) {
			return nil, ErrSlotHeld
		}
		if existing.SessionID == h.SessionID && existing.Range == h.Range {
			return existing, nil
		}
	}

	kept := f.holds[:0]
	for _, existing := range f.holds {
		if existing.SessionID != h.SessionID {
			kept = append(kept, existing)
		}
	}
	f.holds = kept

	f.nextID++
	h.ID = fmt.Sprintf("hold-%d", f.nextID)
	h.CreatedAt = now
	f.holds = append(f.holds, h)
	return h, nil
}

func (f *fakeRepository) ListActiveOverlapping(ctx context.Context, professionalID string, window timerange.TimeRange, excludeSessionID string, now time.Time) ([]*Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Hold
	for _, h := range f.holds {
		if h.ProfessionalID == professionalID && h.Active(now) && h.Range.Overlaps(window) && h.SessionID != excludeSessionID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.holds[:0]
	var n int64
	for _, h := range f.holds {
		if h.Active(now) {
			kept = append(kept, h)
		} else {
			n++
		}
	}
	f.holds = kept
	f.deleted += n
	return n, nil
}

type fakeProRepository struct {
	pros map[string]*professional.Professional
}

func (f *fakeProRepository) GetByID(ctx context.Context, id string) (*professional.Professional, error) {
	if p, ok := f.pros[id]; ok {
		return p, nil
	}
	return nil, professional.ErrNotFound
}

func (f *fakeProRepository) ListByTenant(ctx context.Context, tenantID string) ([]*professional.Professional, error) {
	return nil, nil
}

const proID = "pro-1"

func newTestService(t *testing.T, repo *fakeRepository, now time.Time) *service {
	t.Helper()
	proRepo := &fakeProRepository{pros: map[string]*professional.Professional{
		proID: {ID: proID, TenantID: "tenant-1", Timezone: "UTC"},
	}}
	s := NewService(repo, proRepo, DefaultTTL, zap.NewNop()).(*service)
	s.now = func() time.Time { return now }
	return s
}

func slotAt(now time.Time, offset time.Duration) timerange.TimeRange {
	start := now.Add(offset)
	return timerange.TimeRange{Start: start, End: start.Add(30 * time.Minute)}
}

func TestCreateHoldGrantsClaim(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	s := newTestService(t, repo, now)

	h, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID,
		ServiceID:      "svc-1",
		SessionID:      "session-a",
		Range:          slotAt(now, time.Hour),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, now.Add(DefaultTTL), h.ExpiresAt)
}

func TestCreateHoldRejectsPastStart(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	s := newTestService(t, &fakeRepository{}, now)

	_, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID,
		ServiceID:      "svc-1",
		SessionID:      "session-a",
		Range:          slotAt(now, -time.Hour),
	})

	assert.ErrorIs(t, err, ErrStartTimePast)
}

func TestCreateHoldRejectsUnknownProfessional(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	s := newTestService(t, &fakeRepository{}, now)

	_, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: "nope",
		ServiceID:      "svc-1",
		SessionID:      "session-a",
		Range:          slotAt(now, time.Hour),
	})

	assert.ErrorIs(t, err, ErrProfessionalGone)
}

func TestCreateHoldConflictsWithOtherSession(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	s := newTestService(t, repo, now)
	slot := slotAt(now, time.Hour)

	_, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slot,
	})
	require.NoError(t, err)

	_, err = s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-b", Range: slot,
	})
	assert.ErrorIs(t, err, ErrSlotHeld)
}

func TestCreateHoldSucceedsAfterExpiry(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	s := newTestService(t, repo, now)
	slot := slotAt(now, time.Hour)

	_, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slot,
	})
	require.NoError(t, err)

	// Session B is blocked while A's hold is live.
	_, err = s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-b", Range: slot,
	})
	require.ErrorIs(t, err, ErrSlotHeld)

	// 10 minutes later the hold has lapsed and B's retry wins.
	s.now = func() time.Time { return now.Add(DefaultTTL + time.Second) }
	h, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-b", Range: slot,
	})
	require.NoError(t, err)
	assert.Equal(t, "session-b", h.SessionID)
}

func TestCreateHoldSameSessionKeepsExpiry(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	s := newTestService(t, repo, now)
	slot := slotAt(now, time.Hour)

	first, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slot,
	})
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(5 * time.Minute) }
	second, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slot,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt, "holds are not renewed")
}

func TestCreateHoldSupersedesOwnOtherSlot(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	s := newTestService(t, repo, now)

	first, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slotAt(now, time.Hour),
	})
	require.NoError(t, err)

	// The session changes its mind; the old slot frees up for others.
	_, err = s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slotAt(now, 2*time.Hour),
	})
	require.NoError(t, err)

	h, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-b", Range: first.Range,
	})
	require.NoError(t, err)
	assert.Equal(t, "session-b", h.SessionID)
}

func TestCreateHoldRejectsBookedSlot(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	slot := slotAt(now, time.Hour)
	repo := &fakeRepository{booked: []timerange.TimeRange{slot}}
	s := newTestService(t, repo, now)

	_, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slot,
	})
	assert.ErrorIs(t, err, ErrSlotBooked)
}

func TestConcurrentCreateHoldExactlyOneWinner(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	s := newTestService(t, repo, now)
	slot := slotAt(now, time.Hour)

	const shoppers = 32
	errs := make([]error, shoppers)

	var wg sync.WaitGroup
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Create(context.Background(), CreateRequest{
				ProfessionalID: proID,
				ServiceID:      "svc-1",
				SessionID:      fmt.Sprintf("session-%d", i),
				Range:          slot,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotHeld)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent claimer may win")
}

func TestReapExpired(t *testing.T) {
	now := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	s := newTestService(t, repo, now)

	_, err := s.Create(context.Background(), CreateRequest{
		ProfessionalID: proID, ServiceID: "svc-1", SessionID: "session-a", Range: slotAt(now, time.Hour),
	})
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(DefaultTTL + time.Minute) }
	n, err := s.ReapExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
