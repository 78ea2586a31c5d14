package vu

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/surgeload/surge/internal/script"
)

func fetchModule(fn func(ctx context.Context, vuID, iteration int) error) script.Module {
	return script.FuncModule{
		OptionsFunc: nil,
		RunFunc:     fn,
	}
}

// TestPerVUIterationOrder is property 4: a single VU's iterations run
// 0..n-1 in order, each awaited before the next starts.
func TestPerVUIterationOrder(t *testing.T) {
	v := New(1, nil)

	var mu sync.Mutex
	var seen []int
	m := fetchModule(func(ctx context.Context, vuID, iteration int) error {
		mu.Lock()
		seen = append(seen, iteration)
		mu.Unlock()
		return nil
	})

	v.DoIterations(context.Background(), m, 5, 0, 0)

	want := []int{0, 1, 2, 3, 4}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}

	state := v.ScenarioState()
	if state.Success != 5 || state.Fail != 0 || state.Aborted {
		t.Fatalf("ScenarioState() = %+v, want {5 0 false}", state)
	}
}

func TestIterationFailureIsTaggedAndCounted(t *testing.T) {
	v := New(1, nil)
	m := fetchModule(func(ctx context.Context, vuID, iteration int) error {
		return fmt.Errorf("boom")
	})

	v.DoIterations(context.Background(), m, 3, 0, 0)

	state := v.ScenarioState()
	if state.Success != 0 || state.Fail != 3 {
		t.Fatalf("ScenarioState() = %+v, want {0 3 false}", state)
	}

	report := v.Metrics()
	if got := len(report.Trends["iterations"]["fail"]); got != 3 {
		t.Fatalf("iterations trend \"fail\" tag has %d observations, want 3", got)
	}
	if got := report.Counters; got != nil && len(got) != 0 {
		t.Fatalf("unexpected counters: %+v", got)
	}
}

// TestVUIsolation is property 5: two VUs hitting the same server
// concurrently never observe each other's cookie jar.
func TestVUIsolation(t *testing.T) {
	var mu sync.Mutex
	var counter atomic.Int64
	tokenOwner := map[string]int{}
	secondRequestCookie := map[int]string{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vuID, _ := strconv.Atoi(r.Header.Get("X-Vu"))

		if cookie, err := r.Cookie("token"); err == nil {
			mu.Lock()
			secondRequestCookie[vuID] = cookie.Value
			mu.Unlock()
		}

		token := fmt.Sprintf("t%d", counter.Add(1))
		mu.Lock()
		tokenOwner[token] = vuID
		mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "token", Value: token})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	runVU := func(id int, wg *sync.WaitGroup) {
		defer wg.Done()
		v := New(id, nil)
		m := fetchModule(func(ctx context.Context, vuID, iteration int) error {
			client, ok := ClientFromContext(ctx)
			if !ok {
				return fmt.Errorf("no client in context")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
			if err != nil {
				return err
			}
			req.Header.Set("X-Vu", strconv.Itoa(vuID))
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		})
		v.DoIterations(context.Background(), m, 2, 0, 0)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go runVU(1, &wg)
	go runVU(2, &wg)
	wg.Wait()

	for _, id := range []int{1, 2} {
		cookie, ok := secondRequestCookie[id]
		if !ok {
			t.Fatalf("vu %d never sent a cookie on its second request", id)
		}
		if owner := tokenOwner[cookie]; owner != id {
			t.Fatalf("vu %d sent a cookie owned by vu %d — jars are not isolated", id, owner)
		}
	}
}

// TestGracefulStopSettlesInTime is property 6's success branch: the
// in-flight iteration finishes after maxDuration but inside
// maxDuration+gracefulStop, so it's attributed normally and the VU is
// still marked aborted because later iterations are skipped.
func TestGracefulStopSettlesInTime(t *testing.T) {
	v := New(1, nil)
	m := fetchModule(func(ctx context.Context, vuID, iteration int) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	})

	v.DoIterations(context.Background(), m, 3, 30*time.Millisecond, 200*time.Millisecond)

	state := v.ScenarioState()
	if state.Success != 1 || state.Fail != 0 || !state.Aborted {
		t.Fatalf("ScenarioState() = %+v, want {1 0 true}", state)
	}
}

// TestGracefulStopExceeded is property 6's failure branch (and
// scenario S5's shape): the in-flight iteration runs past
// maxDuration+gracefulStop and is forced to "fail", aborted=true.
func TestGracefulStopExceeded(t *testing.T) {
	v := New(1, nil)
	m := fetchModule(func(ctx context.Context, vuID, iteration int) error {
		time.Sleep(300 * time.Millisecond)
		return nil
	})

	v.DoIterations(context.Background(), m, 3, 20*time.Millisecond, 50*time.Millisecond)

	state := v.ScenarioState()
	if state.Success != 0 || state.Fail != 1 || !state.Aborted {
		t.Fatalf("ScenarioState() = %+v, want {0 1 true}", state)
	}
}

func TestFetchTrendTaggedByStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	v := New(1, nil)
	m := fetchModule(func(ctx context.Context, vuID, iteration int) error {
		client, _ := ClientFromContext(ctx)
		resp, err := client.Get(server.URL)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})

	v.DoIterations(context.Background(), m, 1, 0, 0)

	snap := v.Metrics()
	tagged, ok := snap.Trends["fetch"]
	if !ok {
		t.Fatalf("no fetch trend recorded")
	}
	if _, ok := tagged["I'm a teapot"]; !ok {
		t.Fatalf("fetch trend tags = %v, want \"I'm a teapot\" present", tagged)
	}
}
