package infra

import (
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbuseTracker_ThresholdIsStrict(t *testing.T) {
	tr := NewAbuseTracker(domain.AbusePolicy{Threshold: 5})

	for i := 0; i < 5; i++ {
		tr.Record("B", domain.CategoryHoneypotTriggered)
	}
	assert.False(t, tr.IsBlocked("B"), "threshold-th event must not block")

	tr.Record("B", domain.CategoryHoneypotTriggered)
	assert.True(t, tr.IsBlocked("B"), "threshold+1-th event must block")
}

func TestAbuseTracker_CategoriesCountSeparately(t *testing.T) {
	tr := NewAbuseTracker(domain.AbusePolicy{Threshold: 2})

	tr.Record("c", domain.CategoryInvalidFormData)
	tr.Record("c", domain.CategoryInvalidFormData)
	tr.Record("c", domain.CategorySuspiciousRequest)
	tr.Record("c", domain.CategorySuspiciousRequest)

	assert.False(t, tr.IsBlocked("c"))
	assert.Equal(t, 2, tr.Count("c", domain.CategoryInvalidFormData))
	assert.Equal(t, 2, tr.Stats().TrackedRows)
}

func TestAbuseTracker_BlockIsPermanentWithoutTTL(t *testing.T) {
	clock := newFakeClock()
	tr := NewAbuseTracker(domain.AbusePolicy{Threshold: 1}, WithAbuseClock(clock.Now))

	tr.Record("x", domain.CategorySubmissionError)
	tr.Record("x", domain.CategorySubmissionError)
	require.True(t, tr.IsBlocked("x"))

	clock.Advance(365 * 24 * time.Hour)
	assert.True(t, tr.IsBlocked("x"))
}

// threshold 5, "honeypot_triggered" x6, unblock, e outra sequência de 6 para bloquear de novo.
func TestAbuseTracker_UnblockGivesCleanSlate(t *testing.T) {
	tr := NewAbuseTracker(domain.DefaultAbusePolicy())

	for i := 0; i < 6; i++ {
		tr.Record("B", domain.CategoryHoneypotTriggered)
	}
	tr.Record("B", domain.CategoryInvalidFormData)
	require.True(t, tr.IsBlocked("B"))

	tr.Unblock("B")
	assert.False(t, tr.IsBlocked("B"))
	assert.Equal(t, 0, tr.Count("B", domain.CategoryHoneypotTriggered))
	assert.Equal(t, 0, tr.Count("B", domain.CategoryInvalidFormData))
	assert.Equal(t, 0, tr.Stats().TrackedRows)

	for i := 0; i < 5; i++ {
		tr.Record("B", domain.CategoryHoneypotTriggered)
	}
	assert.False(t, tr.IsBlocked("B"))
	tr.Record("B", domain.CategoryHoneypotTriggered)
	assert.True(t, tr.IsBlocked("B"))
}

func TestAbuseTracker_UnblockNeverBlockedIsNoop(t *testing.T) {
	tr := NewAbuseTracker(domain.DefaultAbusePolicy())
	tr.Record("other", domain.CategorySuspiciousRequest)

	tr.Unblock("nobody")

	st := tr.Stats()
	assert.Equal(t, 1, st.TrackedRows)
	assert.Equal(t, 0, st.BlockedClients)
	assert.Empty(t, st.BlockedList)
}

func TestAbuseTracker_BlockTTLLapses(t *testing.T) {
	clock := newFakeClock()
	tr := NewAbuseTracker(domain.AbusePolicy{Threshold: 1, BlockTTL: time.Hour}, WithAbuseClock(clock.Now))

	tr.Record("x", domain.CategorySuspiciousUserAgent)
	tr.Record("x", domain.CategorySuspiciousUserAgent)
	require.True(t, tr.IsBlocked("x"))

	clock.Advance(59 * time.Minute)
	assert.True(t, tr.IsBlocked("x"))
	assert.Equal(t, 1, tr.Stats().BlockedClients)

	clock.Advance(time.Minute)
	assert.Equal(t, 0, tr.Stats().BlockedClients)
	assert.False(t, tr.IsBlocked("x"))
	assert.Equal(t, 0, tr.Count("x", domain.CategorySuspiciousUserAgent))
}

func TestAbuseTracker_StatsSkipsRowsOfLapsedBlocks(t *testing.T) {
	clock := newFakeClock()
	tr := NewAbuseTracker(domain.AbusePolicy{Threshold: 1, BlockTTL: time.Hour}, WithAbuseClock(clock.Now))

	tr.Record("x", domain.CategorySuspiciousUserAgent)
	tr.Record("x", domain.CategorySuspiciousUserAgent)
	tr.Record("x", domain.CategoryHoneypotTriggered)
	tr.Record("y", domain.CategoryInvalidFormData)

	st := tr.Stats()
	require.Equal(t, 3, st.TrackedRows)
	require.Equal(t, []domain.ClientID{"x"}, st.BlockedList)

	clock.Advance(time.Hour)
	st = tr.Stats()
	assert.Equal(t, 1, st.TrackedRows)
	assert.Empty(t, st.BlockedList)
	assert.Zero(t, st.BlockedClients)
}

func TestAbuseTracker_StatsListsBlockedSorted(t *testing.T) {
	tr := NewAbuseTracker(domain.AbusePolicy{Threshold: 1})
	for _, c := range []domain.ClientID{"z", "a", "m"} {
		tr.Record(c, domain.CategoryRateLimitExceeded)
		tr.Record(c, domain.CategoryRateLimitExceeded)
	}

	st := tr.Stats()
	assert.Equal(t, 3, st.BlockedClients)
	assert.Equal(t, []domain.ClientID{"a", "m", "z"}, st.BlockedList)
}

func TestAbuseTracker_NonPositiveThresholdUsesDefault(t *testing.T) {
	tr := NewAbuseTracker(domain.AbusePolicy{})
	assert.Equal(t, 5, tr.Policy().Threshold)
}

func TestAbuseTracker_ConcurrentRecordsAreCounted(t *testing.T) {
	tr := NewAbuseTracker(domain.AbusePolicy{Threshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("c", domain.CategorySuspiciousRequest)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, tr.Count("c", domain.CategorySuspiciousRequest))
}
