package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// stubServer is a minimal imposter.Server for testing.
type stubServer struct {
	port    int
	stopErr error
	block   chan struct{}
	stops   atomic.Int32
}

func (s *stubServer) Port() int { return s.port }

func (s *stubServer) Stop(ctx context.Context) error {
	s.stops.Add(1)
	if s.block != nil {
		<-s.block
	}
	return s.stopErr
}

func newImposter(t *testing.T, port int) (*imposter.Imposter, *stubServer) {
	t.Helper()
	cfg, err := imposter.ParseConfig([]byte(fmt.Sprintf(`{"protocol":"tcp","port":%d}`, port)))
	require.NoError(t, err)
	srv := &stubServer{port: port}
	return imposter.New(imposter.ProtocolTCP, cfg, imposter.Flags{}, srv), srv
}

func TestRegistry_AddGet(t *testing.T) {
	t.Parallel()
	r := New(nil)

	imp, _ := newImposter(t, 4545)
	require.NoError(t, r.Add(imp))

	got, err := r.Get(4545)
	require.NoError(t, err)
	assert.Same(t, imp, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_AddConflictLeavesContentsUnchanged(t *testing.T) {
	t.Parallel()
	r := New(nil)

	first, _ := newImposter(t, 4545)
	second, _ := newImposter(t, 4545)
	require.NoError(t, r.Add(first))

	err := r.Add(second)
	require.Error(t, err)
	assert.ErrorIs(t, err, imposter.ErrConflict)

	got, err := r.Get(4545)
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_GetMissing(t *testing.T) {
	t.Parallel()
	_, err := New(nil).Get(1234)
	assert.ErrorIs(t, err, imposter.ErrNotFound)
}

func TestRegistry_RemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()
	r := New(nil)

	removed, err := r.Remove(context.Background(), 9999)
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RemoveStopsBeforeDeleting(t *testing.T) {
	t.Parallel()
	r := New(nil)

	imp, srv := newImposter(t, 4545)
	require.NoError(t, r.Add(imp))

	removed, err := r.Remove(context.Background(), 4545)
	require.NoError(t, err)
	assert.Same(t, imp, removed)
	assert.EqualValues(t, 1, srv.stops.Load())

	_, err = r.Get(4545)
	assert.ErrorIs(t, err, imposter.ErrNotFound)

	// Port is free again.
	again, _ := newImposter(t, 4545)
	assert.NoError(t, r.Add(again))
}

func TestRegistry_RemoveTeardownFailureStillRemoves(t *testing.T) {
	t.Parallel()
	r := New(nil)

	imp, srv := newImposter(t, 4545)
	srv.stopErr = errors.New("close failed")
	require.NoError(t, r.Add(imp))

	_, err := r.Remove(context.Background(), 4545)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
	assert.NoError(t, r.Reserve(4545))
}

func TestRegistry_StoppingEntryBlocksPortButIsInvisible(t *testing.T) {
	t.Parallel()
	r := New(nil)

	imp, srv := newImposter(t, 4545)
	srv.block = make(chan struct{})
	require.NoError(t, r.Add(imp))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Remove(context.Background(), 4545)
	}()

	require.Eventually(t, func() bool { return srv.stops.Load() == 1 }, time.Second, time.Millisecond)

	_, err := r.Get(4545)
	assert.ErrorIs(t, err, imposter.ErrNotFound, "a dying listener must not be observable")
	assert.Empty(t, r.List())

	other, _ := newImposter(t, 4545)
	assert.ErrorIs(t, r.Add(other), imposter.ErrConflict, "port must stay occupied until teardown completes")

	// A second Remove waits for the first.
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = r.Remove(context.Background(), 4545)
	}()
	select {
	case <-secondDone:
		t.Fatal("second Remove returned before teardown finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(srv.block)
	<-done
	<-secondDone
	assert.EqualValues(t, 1, srv.stops.Load())
	assert.NoError(t, r.Add(other))
}

func TestRegistry_ReserveCommitRollback(t *testing.T) {
	t.Parallel()
	r := New(nil)

	require.NoError(t, r.Reserve(4545))
	assert.ErrorIs(t, r.Reserve(4545), imposter.ErrConflict)

	_, err := r.Get(4545)
	assert.ErrorIs(t, err, imposter.ErrNotFound, "reservations are not visible")
	assert.Empty(t, r.List())

	removed, err := r.Remove(context.Background(), 4545)
	require.NoError(t, err)
	assert.Nil(t, removed, "remove ignores reservations")

	imp, _ := newImposter(t, 4545)
	require.NoError(t, r.Commit(imp))
	got, err := r.Get(4545)
	require.NoError(t, err)
	assert.Same(t, imp, got)

	// Rollback never removes a committed entry.
	r.Rollback(4545)
	_, err = r.Get(4545)
	assert.NoError(t, err)

	require.NoError(t, r.Reserve(5000))
	r.Rollback(5000)
	assert.NoError(t, r.Reserve(5000))
}

func TestRegistry_CommitWithoutReservation(t *testing.T) {
	t.Parallel()
	imp, _ := newImposter(t, 4545)
	assert.Error(t, New(nil).Commit(imp))
}

func TestRegistry_ReserveRejectsNonPositivePort(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, New(nil).Reserve(0), imposter.ErrConfiguration)
}

func TestRegistry_ListSortedByPort(t *testing.T) {
	t.Parallel()
	r := New(nil)

	for _, port := range []int{5000, 3000, 4000} {
		imp, _ := newImposter(t, port)
		require.NoError(t, r.Add(imp))
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, 3000, list[0].Port())
	assert.Equal(t, 4000, list[1].Port())
	assert.Equal(t, 5000, list[2].Port())
}

func TestRegistry_RemoveAll(t *testing.T) {
	t.Parallel()
	r := New(nil)

	var servers []*stubServer
	for _, port := range []int{3000, 4000, 5000} {
		imp, srv := newImposter(t, port)
		servers = append(servers, srv)
		require.NoError(t, r.Add(imp))
	}
	servers[1].stopErr = errors.New("teardown failed")

	removed := r.RemoveAll(context.Background())
	require.Len(t, removed, 3)
	assert.Equal(t, 3000, removed[0].Port())
	assert.Empty(t, r.List(), "list after RemoveAll is empty")
	assert.Equal(t, 0, r.Count())
	for _, srv := range servers {
		assert.EqualValues(t, 1, srv.stops.Load())
	}

	// Ports are reusable, including the one whose teardown failed.
	assert.NoError(t, r.Reserve(4000))
}

func TestRegistry_ConcurrentAddsSamePort(t *testing.T) {
	t.Parallel()
	r := New(nil)

	const workers = 32
	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for i := 0; i < workers; i++ {
		imp, _ := newImposter(t, 4545)
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := r.Add(imp); {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, imposter.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, workers-1, conflicts.Load())
	assert.Len(t, r.List(), 1)
}

func TestRegistry_ConcurrentReadsDuringMutation(t *testing.T) {
	t.Parallel()
	r := New(nil)

	var wg sync.WaitGroup
	for port := 3000; port < 3050; port++ {
		imp, _ := newImposter(t, port)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Add(imp)
		}()
		go func() {
			defer wg.Done()
			list := r.List()
			seen := make(map[int]bool, len(list))
			for i, imp := range list {
				assert.False(t, seen[imp.Port()], "duplicate port in snapshot")
				seen[imp.Port()] = true
				if i > 0 {
					assert.Less(t, list[i-1].Port(), imp.Port())
				}
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.List(), 50)
}
