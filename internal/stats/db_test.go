package stats_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-qcvm/internal/netmsg"
	"github.com/xirelogy/go-qcvm/internal/stats"
)

var e1m1 = stats.MapContext{MapName: "e1m1", Game: "id1", MapDisplayName: "the Slipgate Complex", SecretCount: 6}

func openDB(t *testing.T) *stats.DB {
	t.Helper()
	db, err := stats.Open(filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMapContextIsStable(t *testing.T) {
	db := openDB(t)
	id, err := db.GetOrInsertMapWithContext(e1m1)
	require.NoError(t, err)
	again, err := db.GetOrInsertMapWithContext(e1m1)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other := e1m1
	other.Game = "hipnotic"
	otherID, err := db.GetOrInsertMapWithContext(other)
	require.NoError(t, err)
	assert.NotEqual(t, id, otherID)
}

func TestInsertSecretFoundIsIdempotent(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.InsertSecretFound(e1m1, 4))
	require.NoError(t, db.InsertSecretFound(e1m1, 1))
	require.NoError(t, db.InsertSecretFound(e1m1, 4))

	found, err := db.SecretsFound("e1m1", "id1")
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 4}, found)

	found, err = db.SecretsFound("e1m2", "id1")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMapCompletions(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.InsertMapCompletion(stats.Completion{
		MapContext:             e1m1,
		GameType:               "coop",
		Skill:                  2,
		MaxSimultaneousPlayers: 2,
		CompletedTime:          95,
		SecretsFound:           []uint16{1, 3, 4},
		MonstersKilled:         40,
		MonstersTotal:          42,
	}))
	require.NoError(t, db.InsertMapCompletion(stats.Completion{MapContext: e1m1, CheatsUsed: true}))

	got, err := db.Completions("e1m1", "id1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, e1m1, got[0].MapContext)
	assert.Equal(t, "coop", got[0].GameType)
	assert.Equal(t, uint16(2), got[0].Skill)
	assert.Equal(t, []uint16{1, 3, 4}, got[0].SecretsFound)
	assert.Equal(t, uint32(42), got[0].MonstersTotal)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.True(t, got[1].CheatsUsed)
	assert.Empty(t, got[1].SecretsFound)
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := stats.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.InsertSecretFound(e1m1, 0))
	found, err := db.SecretsFound("e1m1", "id1")
	require.NoError(t, err)
	assert.Equal(t, []uint16{0}, found)
}

func levelComplete(t *testing.T, skill int, secrets ...uint16) []byte {
	t.Helper()
	b := netmsg.NewSizeBuf(netmsg.MaxDatagram)
	require.NoError(t, netmsg.LevelComplete{Skill: skill, Secrets: secrets}.Write(b))
	return b.Bytes()
}

func TestRecorder(t *testing.T) {
	db := openDB(t)
	session := stats.Session{MapContext: e1m1, GameType: "sp", Players: 1, CompletedTime: 120}

	r := &stats.Recorder{DB: db, Enabled: true}
	wrote, err := r.HandleLevelComplete(levelComplete(t, 1, 0, 5), session)
	require.NoError(t, err)
	assert.True(t, wrote)

	demo := session
	demo.DemoPlayback = true
	wrote, err = r.HandleLevelComplete(levelComplete(t, 1), demo)
	require.NoError(t, err)
	assert.False(t, wrote)

	disabled := &stats.Recorder{DB: db}
	wrote, err = disabled.HandleLevelComplete(levelComplete(t, 1), session)
	require.NoError(t, err)
	assert.False(t, wrote)

	_, err = r.HandleLevelComplete([]byte{0x3c, 1}, session)
	assert.ErrorIs(t, err, netmsg.ErrShortRead)

	got, err := db.Completions("e1m1", "id1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(1), got[0].Skill)
	assert.Equal(t, []uint16{0, 5}, got[0].SecretsFound)
}
