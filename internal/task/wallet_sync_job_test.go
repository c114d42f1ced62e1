package task

import (
	"errors"
	"testing"

	"github.com/kevrollin/fhs/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletSyncBackfillsBalances(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeLedger()
	job := NewWalletSyncJob(db, testConfig(), fake)

	student := model.StudentModel{Name: "alice", Email: "alice@test.edu"}
	require.NoError(t, db.Create(&student).Error)

	funded := model.WalletModel{StudentId: student.Id, Address: "GFUNDED"}
	unfunded := model.WalletModel{StudentId: student.Id, Address: "GUNFUNDED"}
	broken := model.WalletModel{StudentId: student.Id, Address: "GBROKEN"}
	require.NoError(t, db.Create(&funded).Error)
	require.NoError(t, db.Create(&unfunded).Error)
	require.NoError(t, db.Create(&broken).Error)

	fake.balances["GFUNDED"] = 7_500_000
	// GUNFUNDED is absent from the ledger entirely
	fake.balanceErr["GBROKEN"] = errors.New("horizon timeout")

	job.Execute()

	var reloaded model.WalletModel
	require.NoError(t, db.First(&reloaded, funded.Id).Error)
	assert.Equal(t, int64(7_500_000), reloaded.BalanceStroops)
	assert.NotNil(t, reloaded.LastSyncedAt)

	// accounts missing from the ledger sync to a zero balance
	require.NoError(t, db.First(&reloaded, unfunded.Id).Error)
	assert.Equal(t, int64(0), reloaded.BalanceStroops)
	assert.NotNil(t, reloaded.LastSyncedAt)

	// transient errors leave the wallet untouched for the next round
	require.NoError(t, db.First(&reloaded, broken.Id).Error)
	assert.Nil(t, reloaded.LastSyncedAt)
}
