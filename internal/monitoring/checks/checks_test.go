package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/proctorrelay/internal/database"
	"github.com/charlesng35/proctorrelay/internal/database/testutil"
	"github.com/charlesng35/proctorrelay/internal/models"
	"github.com/charlesng35/proctorrelay/internal/monitoring"
	"github.com/charlesng35/proctorrelay/internal/realtime"
)

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	require.NoError(t, database.Close(db))
	result = Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.NotEmpty(t, result.Details)
}

func TestDatabaseCheckWithoutHandle(t *testing.T) {
	result := Database(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestRelaysCheck(t *testing.T) {
	hub := realtime.NewHub(realtime.NewDirectory(), realtime.Options{})
	relay := hub.Directory().GetOrCreate("exam")
	require.NoError(t, relay.Register(models.UserTypeProctor, 1, "c1", make(realtime.Mailbox, 1)))

	result := Relays(hub).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "1 rooms, 1 proctors, 0 members", result.Details)

	require.NoError(t, hub.Shutdown(context.Background()))
	result = Relays(hub).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestRelaysCheckWithoutHub(t *testing.T) {
	result := Relays(nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}
