package workflow

import (
	"testing"
	"time"
)

func TestPublishBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{8, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := PublishBackoff(5*time.Second, 10*time.Minute, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
	if got := PublishBackoff(time.Second, 0, 4); got != 8*time.Second {
		t.Fatalf("uncapped backoff: got %s", got)
	}
}

func TestDispatchOnce_NoDB(t *testing.T) {
	d := NewOutboxDispatcher(nil, nil)
	n, err := d.DispatchOnce(t.Context())
	if err != nil || n != 0 {
		t.Fatalf("expected a no-op without a database, got n=%d err=%v", n, err)
	}
}
