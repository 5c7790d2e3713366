package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGet(t *testing.T) {
	s := NewStore()
	screen := s.NewCell("screen", "welcome")

	assert.Equal(t, "welcome", s.Get(screen))

	s.Set(screen, "scan-id")
	assert.Equal(t, "scan-id", s.Get(screen))
}

func TestStore_UpdateReadModifyWrite(t *testing.T) {
	s := NewStore()
	count := s.NewCell("badge-count", 0)

	s.Update(count, func(old any) any { return old.(int) + 1 })
	s.Update(count, func(old any) any { return old.(int) + 1 })

	assert.Equal(t, 2, s.Get(count))
}

func TestBatch_WritesAreAtomicToDerivedReads(t *testing.T) {
	s := NewStore()
	first := s.NewCell("first-name", "")
	last := s.NewCell("last-name", "")

	full := s.NewDerived("full-name", func(get func(*Cell) any) any {
		return get(first).(string) + " " + get(last).(string)
	}, first, last)

	s.Batch(func(b *Batch) {
		b.Set(first, "Jane")
		b.Set(last, "Doe")
	})

	// One read after a two-write batch: exactly one recompute, and the
	// result reflects both writes, never "Jane " or " Doe".
	assert.Equal(t, "Jane Doe", s.Get(full))
	assert.Equal(t, 1, full.Recomputes())
}

func TestDerived_LazyUntilRead(t *testing.T) {
	s := NewStore()
	online := s.NewCell("online", true)

	status := s.NewDerived("status", func(get func(*Cell) any) any {
		if get(online).(bool) {
			return "ready"
		}
		return "offline"
	}, online)

	// Writes alone never recompute.
	s.Set(online, false)
	s.Set(online, true)
	s.Set(online, false)
	assert.Equal(t, 0, status.Recomputes())

	assert.Equal(t, "offline", s.Get(status))
	assert.Equal(t, 1, status.Recomputes())
}

func TestBatch_RefreshesOnlySubscribedDerived(t *testing.T) {
	s := NewStore()
	online := s.NewCell("online", true)

	watched := s.NewDerived("watched", func(get func(*Cell) any) any {
		return get(online).(bool)
	}, online)
	unwatched := s.NewDerived("unwatched", func(get func(*Cell) any) any {
		return !get(online).(bool)
	}, online)

	cancel := s.Subscribe(watched, func(any) {})
	defer cancel()

	s.Set(online, false)

	assert.Equal(t, 1, watched.Recomputes(), "a subscribed derived cell settles at commit")
	assert.Equal(t, 0, unwatched.Recomputes(), "an unobserved derived cell stays stale until read")

	assert.Equal(t, true, s.Get(unwatched))
	assert.Equal(t, 1, unwatched.Recomputes())
}

func TestDerived_CachedBetweenWrites(t *testing.T) {
	s := NewStore()
	printer := s.NewCell("printer-ok", true)

	ready := s.NewDerived("ready", func(get func(*Cell) any) any {
		return get(printer).(bool)
	}, printer)

	assert.Equal(t, true, s.Get(ready))
	assert.Equal(t, true, s.Get(ready))
	assert.Equal(t, true, s.Get(ready))
	assert.Equal(t, 1, ready.Recomputes(), "repeated reads between writes must hit the cache")

	s.Set(printer, false)
	assert.Equal(t, false, s.Get(ready))
	assert.Equal(t, 2, ready.Recomputes())
}

func TestDerived_ChainsThroughDerivedDeps(t *testing.T) {
	s := NewStore()
	online := s.NewCell("online", true)
	printerOK := s.NewCell("printer-ok", true)

	systemReady := s.NewDerived("system-ready", func(get func(*Cell) any) any {
		return get(online).(bool) && get(printerOK).(bool)
	}, online, printerOK)

	canCheckIn := s.NewDerived("can-check-in", func(get func(*Cell) any) any {
		return get(systemReady).(bool)
	}, systemReady)

	assert.Equal(t, true, s.Get(canCheckIn))

	s.Set(printerOK, false)
	assert.Equal(t, false, s.Get(canCheckIn), "change must propagate through intermediate derived cell")

	s.Set(printerOK, true)
	assert.Equal(t, true, s.Get(canCheckIn))
}

func TestSubscribe_NotifiedOncePerBatchWithSettledValue(t *testing.T) {
	s := NewStore()
	first := s.NewCell("first-name", "")
	last := s.NewCell("last-name", "")

	full := s.NewDerived("full-name", func(get func(*Cell) any) any {
		return get(first).(string) + " " + get(last).(string)
	}, first, last)

	var got []string
	cancel := s.Subscribe(full, func(v any) {
		got = append(got, v.(string))
	})
	defer cancel()

	s.Batch(func(b *Batch) {
		b.Set(first, "Jane")
		b.Set(last, "Doe")
	})

	require.Len(t, got, 1, "two writes in one batch must notify once")
	assert.Equal(t, "Jane Doe", got[0])
}

func TestSubscribe_CancelStopsNotifications(t *testing.T) {
	s := NewStore()
	screen := s.NewCell("screen", "welcome")

	calls := 0
	cancel := s.Subscribe(screen, func(any) { calls++ })

	s.Set(screen, "scan-id")
	assert.Equal(t, 1, calls)

	cancel()
	cancel() // idempotent

	s.Set(screen, "contact-info")
	assert.Equal(t, 1, calls)
}

func TestBatch_GetObservesEarlierWritesInSameBatch(t *testing.T) {
	s := NewStore()
	count := s.NewCell("count", 1)

	doubled := s.NewDerived("doubled", func(get func(*Cell) any) any {
		return get(count).(int) * 2
	}, count)

	s.Batch(func(b *Batch) {
		b.Set(count, 10)
		assert.Equal(t, 20, b.Get(doubled))
	})
}

func TestSet_OnDerivedPanics(t *testing.T) {
	s := NewStore()
	online := s.NewCell("online", true)
	status := s.NewDerived("status", func(get func(*Cell) any) any {
		return get(online)
	}, online)

	assert.Panics(t, func() { s.Set(status, "nope") })
}

func TestNewDerived_RegistrationValidation(t *testing.T) {
	s := NewStore()
	other := NewStore()
	ok := s.NewCell("ok", 1)
	foreign := other.NewCell("foreign", 1)

	identity := func(get func(*Cell) any) any { return get(ok) }

	assert.Panics(t, func() { s.NewDerived("no-deps", identity) })
	assert.Panics(t, func() { s.NewDerived("nil-dep", identity, nil) })
	assert.Panics(t, func() { s.NewDerived("foreign-dep", identity, foreign) })
	assert.Panics(t, func() {
		s.NewDerived("nil-compute", nil, ok)
	})
}

func TestVersion_AdvancesOnWrite(t *testing.T) {
	s := NewStore()
	c := s.NewCell("c", 0)

	v0 := c.Version()
	s.Set(c, 1)
	assert.Greater(t, c.Version(), v0)
}
