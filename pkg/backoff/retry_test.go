package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"
)

// recordSleep captures requested delays without actually waiting.
type recordSleep struct {
	delays []time.Duration
}

func (r *recordSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func failing(n int, calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= n {
			return "", fmt.Errorf("failure %d", *calls)
		}
		return "ok", nil
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	const maxAttempts = 4
	for n := 0; n < maxAttempts; n++ {
		rs := &recordSleep{}
		calls := 0
		got, err := Do(context.Background(), Policy{MaxAttempts: maxAttempts, Sleep: rs.sleep}, failing(n, &calls))
		if err != nil {
			t.Fatalf("n=%d: unexpected error %v", n, err)
		}
		if got != "ok" {
			t.Fatalf("n=%d: got %q", n, got)
		}
		if calls != n+1 {
			t.Fatalf("n=%d: expected %d attempts, got %d", n, n+1, calls)
		}
		if len(rs.delays) != n {
			t.Fatalf("n=%d: expected %d sleeps, got %d", n, n, len(rs.delays))
		}
	}
}

func TestDo_ReturnsLastFailureAfterBudget(t *testing.T) {
	t.Parallel()

	for _, n := range []int{3, 4, 10} {
		rs := &recordSleep{}
		calls := 0
		_, err := Do(context.Background(), Policy{MaxAttempts: 3, Sleep: rs.sleep}, failing(n, &calls))
		if calls != 3 {
			t.Fatalf("n=%d: expected exactly 3 attempts, got %d", n, calls)
		}
		if err == nil || err.Error() != "failure 3" {
			t.Fatalf("n=%d: expected last failure, got %v", n, err)
		}
		if len(rs.delays) != 2 {
			t.Fatalf("n=%d: expected 2 sleeps, got %d", n, len(rs.delays))
		}
	}
}

func TestDo_ReturnsFailureUnmodified(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("boom")
	_, err := Do(context.Background(), Policy{MaxAttempts: 2, Sleep: (&recordSleep{}).sleep},
		func(context.Context) (int, error) { return 0, sentinel })
	if err != sentinel {
		t.Fatalf("expected the exact sentinel, got %v", err)
	}
}

func TestDelay_Bounds(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	p := Policy{BaseDelay: base}
	rng := rand.New(rand.NewPCG(1, 2))
	for k := 0; k < 5; k++ {
		lo := base * time.Duration(1<<k)
		hi := time.Duration(float64(lo) * 1.3)
		for i := 0; i < 200; i++ {
			d := p.Delay(k, rng.Float64())
			if d < lo || d >= hi {
				t.Fatalf("k=%d: delay %v outside [%v, %v)", k, d, lo, hi)
			}
		}
	}
}

func TestDo_DelaysFollowSchedule(t *testing.T) {
	t.Parallel()

	rs := &recordSleep{}
	var seen []Attempt
	p := Policy{
		MaxAttempts: 4,
		BaseDelay:   10 * time.Millisecond,
		Rand:        func() float64 { return 0 },
		Sleep:       rs.sleep,
		OnRetry:     func(a Attempt) { seen = append(seen, a) },
	}
	calls := 0
	_, _ = Do(context.Background(), p, failing(10, &calls))

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(rs.delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), rs.delays)
	}
	for i := range want {
		if rs.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, rs.delays[i], want[i])
		}
		if seen[i].Number != i+1 || seen[i].MaxAttempts != 4 || seen[i].Delay != want[i] {
			t.Errorf("attempt[%d] = %+v", i, seen[i])
		}
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Hour}, failing(10, &calls))
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
	if err == nil || err.Error() != "failure 1" {
		t.Fatalf("expected the attempt's failure, got %v", err)
	}
}
