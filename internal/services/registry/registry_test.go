package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/models"
)

type stubInventory struct {
	profiles []models.DeviceProfile
}

func (s *stubInventory) Replace(profiles []models.DeviceProfile) { s.profiles = profiles }

func (s *stubInventory) List() []models.DeviceProfile {
	return append([]models.DeviceProfile{}, s.profiles...)
}

func (s *stubInventory) GetByKey(key string) (models.DeviceProfile, bool) {
	for _, p := range s.profiles {
		if p.Key() == key {
			return p, true
		}
	}
	return models.DeviceProfile{}, false
}

func (s *stubInventory) Count() int { return len(s.profiles) }

func testProfiles() []models.DeviceProfile {
	return []models.DeviceProfile{
		{Host: "10.10.0.1", Port: 22, DeviceType: "cisco_ios", Username: "admin", Password: "secret", VerifyCmds: []string{"show run | include ntp"}, ConnectionOK: true},
		{Host: "10.10.0.2", Port: 22, DeviceType: "cisco_ios", Username: "admin", Password: "secret", ConnectionOK: true},
		{Host: "10.10.0.3", Port: 22, DeviceType: "cisco_ios", Username: "admin", Password: "secret", ConnectionOK: true},
	}
}

func testCreate() *models.JobCreate {
	return &models.JobCreate{
		JobName:  "ntp rollout",
		Canary:   models.NewDeviceTarget("10.10.0.1", 22),
		Commands: "ntp server 10.0.0.5\nlogging host 10.0.0.9",
	}
}

func newTestService(t *testing.T, inv *stubInventory) *Service {
	t.Helper()
	if inv == nil {
		inv = &stubInventory{profiles: testProfiles()}
	}
	return NewService(arbor.NewLogger(), inv, 0, nil).(*Service)
}

func TestCreateSnapshotsDeviceParams(t *testing.T) {
	inv := &stubInventory{profiles: testProfiles()}
	svc := newTestService(t, inv)

	record, err := svc.Create(testCreate())
	require.NoError(t, err)

	assert.NotEmpty(t, record.JobID)
	assert.Equal(t, models.JobStatusQueued, record.Status)
	assert.Len(t, record.Targets, 3)
	assert.Len(t, record.DeviceResults, 3)
	require.Contains(t, record.DeviceParams, "10.10.0.1:22")
	assert.Equal(t, "secret", record.DeviceParams["10.10.0.1:22"].Password)
	assert.Equal(t, []string{"show run | include ntp"}, record.DeviceParams["10.10.0.1:22"].VerifyCmds)
	for _, result := range record.DeviceResults {
		assert.Equal(t, models.DeviceStatusQueued, result.Status)
	}

	// Re-importing the inventory must not disturb the snapshot.
	replaced := testProfiles()
	for i := range replaced {
		replaced[i].Password = "rotated"
	}
	inv.Replace(replaced)

	got, err := svc.Get(record.JobID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.DeviceParams["10.10.0.1:22"].Password)
}

func TestCreateUsesWholeInventoryWhenDevicesOmitted(t *testing.T) {
	svc := newTestService(t, nil)

	record, err := svc.Create(testCreate())
	require.NoError(t, err)

	require.Len(t, record.Targets, 3)
	assert.Equal(t, "10.10.0.1:22", record.Targets[0].Key())
	assert.Equal(t, "10.10.0.2:22", record.Targets[1].Key())
	assert.Equal(t, "10.10.0.3:22", record.Targets[2].Key())
}

func TestCreateExplicitTargetsKeepOrder(t *testing.T) {
	svc := newTestService(t, nil)

	create := testCreate()
	create.Devices = []models.DeviceTarget{
		models.NewDeviceTarget("10.10.0.3", 22),
		models.NewDeviceTarget("10.10.0.1", 22),
		models.NewDeviceTarget("10.10.0.3", 22), // duplicate collapses
	}

	record, err := svc.Create(create)
	require.NoError(t, err)
	require.Len(t, record.Targets, 2)
	assert.Equal(t, "10.10.0.3:22", record.Targets[0].Key())
	assert.Equal(t, "10.10.0.1:22", record.Targets[1].Key())
}

func TestCreateRejectsUnknownTarget(t *testing.T) {
	svc := newTestService(t, nil)

	create := testCreate()
	create.Devices = []models.DeviceTarget{models.NewDeviceTarget("10.99.0.1", 22)}

	_, err := svc.Create(create)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "10.99.0.1:22")
}

func TestCreateRejectsUnknownCanary(t *testing.T) {
	svc := newTestService(t, nil)

	create := testCreate()
	create.Canary = models.NewDeviceTarget("10.99.0.9", 22)

	_, err := svc.Create(create)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "10.99.0.9:22")
}

func TestCreateRejectsBlankCommands(t *testing.T) {
	svc := newTestService(t, nil)

	create := testCreate()
	create.Commands = "  \n\n  "

	_, err := svc.Create(create)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateRejectsEmptyInventory(t *testing.T) {
	svc := newTestService(t, &stubInventory{})

	_, err := svc.Create(testCreate())
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateSingleActiveGuard(t *testing.T) {
	svc := newTestService(t, nil)

	first, err := svc.Create(testCreate())
	require.NoError(t, err)

	_, err = svc.Create(testCreate())
	assert.ErrorIs(t, err, models.ErrActiveJobConflict)

	// Terminal jobs release the slot.
	_, err = svc.ApplyEvent(first.JobID, models.JobEventCancel)
	require.NoError(t, err)

	_, err = svc.Create(testCreate())
	assert.NoError(t, err)
}

func TestApplyEventStampsTimestamps(t *testing.T) {
	svc := newTestService(t, nil)

	record, err := svc.Create(testCreate())
	require.NoError(t, err)
	assert.Nil(t, record.StartedAt)
	assert.Nil(t, record.CompletedAt)

	running, err := svc.ApplyEvent(record.JobID, models.JobEventStart)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)
	assert.Nil(t, running.CompletedAt)

	done, err := svc.ApplyEvent(record.JobID, models.JobEventComplete)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, *running.StartedAt, *done.StartedAt)
}

func TestApplyEventRejectsInvalidTransition(t *testing.T) {
	svc := newTestService(t, nil)

	record, err := svc.Create(testCreate())
	require.NoError(t, err)

	_, err = svc.ApplyEvent(record.JobID, models.JobEventResume)
	var terr *models.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.JobStatusQueued, terr.Status)

	_, err = svc.ApplyEvent("missing", models.JobEventStart)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestUpdateDeviceResult(t *testing.T) {
	svc := newTestService(t, nil)

	record, err := svc.Create(testCreate())
	require.NoError(t, err)

	err = svc.UpdateDeviceResult(record.JobID, "10.10.0.2:22", func(r *models.DeviceResult) {
		r.MarkRunning()
	})
	require.NoError(t, err)

	got, err := svc.Get(record.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusRunning, got.DeviceResults["10.10.0.2:22"].Status)
	assert.NotNil(t, got.DeviceResults["10.10.0.2:22"].StartedAt)

	err = svc.UpdateDeviceResult(record.JobID, "10.99.0.1:22", func(r *models.DeviceResult) {})
	assert.ErrorIs(t, err, models.ErrDeviceNotFound)

	err = svc.UpdateDeviceResult("missing", "10.10.0.2:22", func(r *models.DeviceResult) {})
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestEnsureDeviceResult(t *testing.T) {
	svc := newTestService(t, nil)

	create := testCreate()
	create.Devices = []models.DeviceTarget{models.NewDeviceTarget("10.10.0.2", 22)}
	record, err := svc.Create(create)
	require.NoError(t, err)
	assert.NotContains(t, record.DeviceResults, "10.10.0.1:22")

	require.NoError(t, svc.EnsureDeviceResult(record.JobID, models.NewDeviceTarget("10.10.0.1", 22)))
	require.NoError(t, svc.EnsureDeviceResult(record.JobID, models.NewDeviceTarget("10.10.0.1", 22)))

	got, err := svc.Get(record.JobID)
	require.NoError(t, err)
	require.Contains(t, got.DeviceResults, "10.10.0.1:22")
	assert.Equal(t, models.DeviceStatusQueued, got.DeviceResults["10.10.0.1:22"].Status)
	assert.Len(t, got.Targets, 2)
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	svc := newTestService(t, nil)

	record, err := svc.Create(testCreate())
	require.NoError(t, err)

	got, err := svc.Get(record.JobID)
	require.NoError(t, err)
	got.DeviceResults["10.10.0.1:22"].Status = models.DeviceStatusFailed
	got.Status = models.JobStatusFailed

	again, err := svc.Get(record.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, again.Status)
	assert.Equal(t, models.DeviceStatusQueued, again.DeviceResults["10.10.0.1:22"].Status)
}

func TestListNewestFirstAndActive(t *testing.T) {
	svc := newTestService(t, nil)

	assert.Nil(t, svc.Active())
	assert.Empty(t, svc.List())

	first, err := svc.Create(testCreate())
	require.NoError(t, err)
	_, err = svc.ApplyEvent(first.JobID, models.JobEventCancel)
	require.NoError(t, err)

	second, err := svc.Create(testCreate())
	require.NoError(t, err)

	jobs := svc.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.JobID, jobs[0].JobID)
	assert.Equal(t, first.JobID, jobs[1].JobID)

	active := svc.Active()
	require.NotNil(t, active)
	assert.Equal(t, second.JobID, active.JobID)
}

func TestHistoryEvictionDropsOldestTerminal(t *testing.T) {
	inv := &stubInventory{profiles: testProfiles()}
	var evicted []string
	svc := NewService(arbor.NewLogger(), inv, 2, func(jobID string) {
		evicted = append(evicted, jobID)
	}).(*Service)

	var ids []string
	for i := 0; i < 3; i++ {
		record, err := svc.Create(testCreate())
		require.NoError(t, err)
		ids = append(ids, record.JobID)
		_, err = svc.ApplyEvent(record.JobID, models.JobEventCancel)
		require.NoError(t, err)
	}

	// Oldest terminal job is gone, the two newest remain.
	_, err := svc.Get(ids[0])
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	_, err = svc.Get(ids[1])
	assert.NoError(t, err)
	_, err = svc.Get(ids[2])
	assert.NoError(t, err)

	assert.Equal(t, []string{ids[0]}, evicted)
	assert.Len(t, svc.List(), 2)
}
