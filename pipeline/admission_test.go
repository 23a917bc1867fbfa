package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionCheck(t *testing.T) {
	t.Run("no templates", func(t *testing.T) {
		a := newTestAttempt(cloud.Cloud{Name: "empty", Namespace: "default"}, "")
		err := AdmissionCheck{Cluster: &mockCluster{}}.Handle(context.Background(), a)
		assert.ErrorIs(t, err, ErrNoTemplates)
	})

	t.Run("no matching template", func(t *testing.T) {
		a := newTestAttempt(newTestCloud("linux-only", newTestTemplate("linux", "linux")), "windows")
		err := AdmissionCheck{Cluster: &mockCluster{}}.Handle(context.Background(), a)
		assert.ErrorIs(t, err, ErrNoMatchingTemplate)
		assert.EqualError(t, err, "no matching pod template for label 'windows'")
	})

	t.Run("cap reached", func(t *testing.T) {
		cluster := &mockCluster{countFunc: func() (int, error) { return 2, nil }}
		a := newTestAttempt(newTestCloud("capped", newTestTemplate("default", "")), "")

		err := AdmissionCheck{Cluster: cluster, Capacity: NewCapacity(2)}.Handle(context.Background(), a)
		assert.ErrorIs(t, err, ErrCapacityReached)
		assert.EqualError(t, err, "instance cap reached: 2 live, 0 starting, cap is 2")
	})

	t.Run("count failure", func(t *testing.T) {
		cluster := &mockCluster{countFunc: func() (int, error) { return 0, errors.New("forbidden") }}
		a := newTestAttempt(newTestCloud("forbidden", newTestTemplate("default", "")), "")

		err := AdmissionCheck{Cluster: cluster, Capacity: NewCapacity(2)}.Handle(context.Background(), a)
		assert.EqualError(t, err, "failed to count live pods: forbidden")
		assert.False(t, IsPolicy(err))
	})

	t.Run("admitted", func(t *testing.T) {
		capacity := NewCapacity(3)
		cluster := &mockCluster{countFunc: func() (int, error) { return 2, nil }}
		a := newTestAttempt(newTestCloud("admitted", newTestTemplate("default", "")), "")

		require.NoError(t, AdmissionCheck{Cluster: cluster, Capacity: capacity}.Handle(context.Background(), a))
		assert.Equal(t, 1, capacity.Reserved())

		a.releaseReservation()
		assert.Equal(t, 0, capacity.Reserved())
	})
}

func TestCapacityIsRaceFree(t *testing.T) {
	const limit = 3
	capacity := NewCapacity(limit)
	countLive := func(context.Context) (int, error) { return 0, nil }

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		refused  int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := capacity.Admit(context.Background(), countLive)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrCapacityReached)
				refused++
			} else {
				admitted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)
	assert.Equal(t, 20-limit, refused)
	assert.Equal(t, limit, capacity.Reserved())
}

func TestCapacityUnlimited(t *testing.T) {
	capacity := NewCapacity(0)
	countLive := func(context.Context) (int, error) {
		t.Fatal("live pods must not be counted without a cap")
		return 0, nil
	}

	for range 100 {
		_, err := capacity.Admit(context.Background(), countLive)
		require.NoError(t, err)
	}
}

func TestCapacityReleaseIsIdempotent(t *testing.T) {
	capacity := NewCapacity(1)
	countLive := func(context.Context) (int, error) { return 0, nil }

	release, err := capacity.Admit(context.Background(), countLive)
	require.NoError(t, err)
	release()
	release()
	assert.Equal(t, 0, capacity.Reserved())

	_, err = capacity.Admit(context.Background(), countLive)
	assert.NoError(t, err)
}

func TestCapacityCheckDoesNotReserve(t *testing.T) {
	capacity := NewCapacity(2)
	live := 0
	countLive := func(context.Context) (int, error) { return live, nil }

	require.NoError(t, capacity.Check(context.Background(), countLive))
	require.NoError(t, capacity.Check(context.Background(), countLive))
	assert.Equal(t, 0, capacity.Reserved())

	// Reservations and live pods both count against the cap.
	_, err := capacity.Admit(context.Background(), countLive)
	require.NoError(t, err)
	live = 1
	assert.ErrorIs(t, capacity.Check(context.Background(), countLive), ErrCapacityReached)

	boom := errors.New("boom")
	assert.ErrorIs(t, capacity.Check(context.Background(), func(context.Context) (int, error) {
		return 0, boom
	}), boom)
}
