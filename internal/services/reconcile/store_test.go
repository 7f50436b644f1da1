package reconcile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/corrudash/internal/models"
)

func TestStore_StartsEmpty(t *testing.T) {
	store := NewStore()

	assert.NotNil(t, store.Current())
	assert.Empty(t, store.Current())
	assert.True(t, store.View().SnapshotAt.IsZero())
}

func TestStore_RecomputesOnEitherInput(t *testing.T) {
	store := NewStore()

	store.SetLiveSet([]models.JobLiveState{{ID: "J1", Progress: 0.5, Status: models.JobStatusInProgress}})
	assert.Empty(t, store.Current(), "live data alone produces no rows")

	store.SetSnapshot([]models.JobStaticProfile{{ID: "J1", PredictedWaste: 10}})
	require.Len(t, store.Current(), 1)
	assert.Equal(t, 0.5, store.Current()[0].Live.Progress, "memoized live set is reused")

	store.SetLiveSet(nil)
	require.Len(t, store.Current(), 1)
	assert.False(t, store.Current()[0].HasLiveData)
}

func TestStore_SnapshotReplacedWholesale(t *testing.T) {
	store := NewStore()
	store.SetSnapshot([]models.JobStaticProfile{{ID: "J1"}, {ID: "J2"}})
	store.SetSnapshot([]models.JobStaticProfile{{ID: "J2"}})

	jobs := store.Current()
	require.Len(t, jobs, 1)
	assert.Equal(t, "J2", jobs[0].ID())

	_, ok := store.Profile("J1")
	assert.False(t, ok)
}

func TestStore_CopiesInputs(t *testing.T) {
	store := NewStore()
	profiles := []models.JobStaticProfile{{ID: "J1"}}
	store.SetSnapshot(profiles)

	profiles[0].ID = "MUTATED"
	store.SetLiveSet(nil)

	assert.Equal(t, "J1", store.Current()[0].ID())
}

func TestStore_ListenersSeeVersionsInOrder(t *testing.T) {
	store := NewStore()

	var mu sync.Mutex
	var versions []uint64
	store.OnChange(func(view View) {
		mu.Lock()
		versions = append(versions, view.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.SetLiveSet([]models.JobLiveState{{ID: "J1"}})
		}()
	}
	wg.Wait()

	require.Len(t, versions, 20)
	for i := 1; i < len(versions); i++ {
		assert.Less(t, versions[i-1], versions[i])
	}
	assert.Equal(t, uint64(20), store.View().Version)
}
