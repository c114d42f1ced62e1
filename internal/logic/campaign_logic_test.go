package logic

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type campaignFixture struct {
	db       *gorm.DB
	ledger   *fakeLedger
	notifier *fakeNotifier
	logic    *CampaignLogic
}

func newCampaignFixture(t *testing.T) *campaignFixture {
	t.Helper()
	db := newTestDB(t)
	fake := newFakeLedger()
	notifier := &fakeNotifier{}
	return &campaignFixture{
		db:       db,
		ledger:   fake,
		notifier: notifier,
		logic:    NewCampaignLogic(db, fake, notifier),
	}
}

// recipient seeds a student with a funded wallet and returns both.
func (f *campaignFixture) recipient(t *testing.T, name string, verified bool) (*model.StudentModel, string) {
	t.Helper()
	student := seedStudent(t, f.db, name, verified)
	address := "GACC" + name
	seedWallet(t, f.db, student.Id, address)
	return student, address
}

func (f *campaignFixture) campaign(t *testing.T, criteria model.CampaignCriteria, ref string, pool int64) *model.CampaignModel {
	t.Helper()
	campaign := &model.CampaignModel{
		Name:              "Scholarship Drive",
		Criteria:          criteria,
		CriteriaRef:       ref,
		PoolAmountStroops: pool,
	}
	require.NoError(t, f.logic.CreateCampaign(campaign))
	return campaign
}

func (f *campaignFixture) distributions(t *testing.T, campaignId int64) []model.CampaignDistributionModel {
	t.Helper()
	var rows []model.CampaignDistributionModel
	require.NoError(t, f.db.Where("campaign_id = ?", campaignId).Order("id ASC").Find(&rows).Error)
	return rows
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newCampaignFixture(t)

	err := f.logic.CreateCampaign(&model.CampaignModel{Criteria: model.CriteriaVerifiedStudents, PoolAmountStroops: 100})
	require.Error(t, err)

	err = f.logic.CreateCampaign(&model.CampaignModel{Name: "n", Criteria: model.CriteriaVerifiedStudents, PoolAmountStroops: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = f.logic.CreateCampaign(&model.CampaignModel{Name: "n", Criteria: "everyone", PoolAmountStroops: 100})
	require.ErrorIs(t, err, ErrInvalidCriteria)

	err = f.logic.CreateCampaign(&model.CampaignModel{Name: "n", Criteria: model.CriteriaCustom, PoolAmountStroops: 100})
	require.ErrorIs(t, err, ErrInvalidCriteria)

	campaign := &model.CampaignModel{
		Name:              "n",
		Criteria:          model.CriteriaVerifiedStudents,
		PoolAmountStroops: 100,
		Status:            model.CampaignStatusCompleted, // caller-set status is ignored
	}
	require.NoError(t, f.logic.CreateCampaign(campaign))
	assert.Equal(t, model.CampaignStatusActive, campaign.Status)
}

func TestExecuteSplitsPoolExactly(t *testing.T) {
	f := newCampaignFixture(t)
	alice, aliceAddr := f.recipient(t, "alice", true)
	f.recipient(t, "bob", true)
	f.recipient(t, "carol", true)

	pool := int64(1_000_000_000)
	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", pool)

	summary, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RecipientCount)
	assert.Equal(t, int64(333_333_333), summary.PerAmountStroops)
	assert.Equal(t, int64(1), summary.RemainderStroops)
	assert.Equal(t, 3, summary.Settled)
	assert.Equal(t, 0, summary.Pending)
	assert.True(t, summary.Completed)

	rows := f.distributions(t, campaign.Id)
	require.Len(t, rows, 3)
	var total int64
	for _, row := range rows {
		total += row.AmountStroops
		assert.NotEmpty(t, row.TxHash)
		// remainder goes to the first recipient by student id
		if row.RecipientId == alice.Id {
			assert.Equal(t, int64(333_333_334), row.AmountStroops)
			assert.Equal(t, aliceAddr, row.RecipientAddress)
		} else {
			assert.Equal(t, int64(333_333_333), row.AmountStroops)
		}
	}
	assert.Equal(t, pool, total)

	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusCompleted, reloaded.Status)

	assert.Equal(t, 3, f.ledger.paymentCount())
	payments := f.ledger.paymentsTo(aliceAddr)
	require.Len(t, payments, 1)
	assert.Equal(t, ledger.AccountRewards, payments[0].From)
	assert.Equal(t, fmt.Sprintf("camp:%d", campaign.Id), payments[0].Memo)

	assert.Len(t, f.notifier.byType(notify.EventCampaignCompleted), 1)
}

func TestExecutePoolConservation(t *testing.T) {
	pool := int64(1_000_000_001)
	for n := 1; n <= 7; n++ {
		t.Run(fmt.Sprintf("recipients=%d", n), func(t *testing.T) {
			f := newCampaignFixture(t)
			for i := 0; i < n; i++ {
				f.recipient(t, fmt.Sprintf("student%02d", i), true)
			}
			campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", pool)

			summary, err := f.logic.Execute(context.Background(), campaign.Id)
			require.NoError(t, err)
			require.Equal(t, n, summary.RecipientCount)

			var total int64
			for _, row := range f.distributions(t, campaign.Id) {
				total += row.AmountStroops
			}
			assert.Equal(t, pool, total, "distributed total must equal the pool")
		})
	}
}

func TestExecuteStateGate(t *testing.T) {
	f := newCampaignFixture(t)
	f.recipient(t, "alice", true)

	_, err := f.logic.Execute(context.Background(), 999)
	require.ErrorIs(t, err, ErrCampaignNotFound)

	for _, status := range []model.CampaignStatus{
		model.CampaignStatusExecuting, model.CampaignStatusCompleted, model.CampaignStatusPaused,
	} {
		campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", 100)
		require.NoError(t, f.db.Model(campaign).Update("status", status).Error)
		_, err := f.logic.Execute(context.Background(), campaign.Id)
		require.ErrorIs(t, err, ErrNotActive, "status %s must not be executable", status)
	}
}

func TestExecuteNoEligibleRecipients(t *testing.T) {
	f := newCampaignFixture(t)
	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", 100)

	_, err := f.logic.Execute(context.Background(), campaign.Id)
	require.ErrorIs(t, err, ErrNoEligibleRecipients)

	// no funds moved, campaign reverts to active for a later run
	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusActive, reloaded.Status)
	assert.Equal(t, 0, f.ledger.paymentCount())
}

func TestExecuteEligibility(t *testing.T) {
	f := newCampaignFixture(t)
	verified, _ := f.recipient(t, "alice", true)
	f.recipient(t, "bob", false)                // unverified
	seedStudent(t, f.db, "carol", true)         // verified but no wallet
	seedWallet(t, f.db, verified.Id, "GSECOND") // second wallet must not double-pay

	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", 100)
	summary, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecipientCount)

	rows := f.distributions(t, campaign.Id)
	require.Len(t, rows, 1)
	assert.Equal(t, verified.Id, rows[0].RecipientId)
	assert.Equal(t, int64(100), rows[0].AmountStroops)
}

func TestExecuteActiveProjectCriteria(t *testing.T) {
	f := newCampaignFixture(t)
	withActive, _ := f.recipient(t, "alice", true)
	draftOnly, _ := f.recipient(t, "bob", true)
	twoProjects, _ := f.recipient(t, "carol", false) // verification not required here

	seedProject(t, f.db, withActive.Id, 100, model.ProjectStatusActive)
	seedProject(t, f.db, draftOnly.Id, 100, model.ProjectStatusDraft)
	seedProject(t, f.db, twoProjects.Id, 100, model.ProjectStatusActive)
	seedProject(t, f.db, twoProjects.Id, 200, model.ProjectStatusActive)

	campaign := f.campaign(t, model.CriteriaActiveProjects, "", 1_000)
	summary, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RecipientCount)

	rows := f.distributions(t, campaign.Id)
	require.Len(t, rows, 2)
	assert.Equal(t, withActive.Id, rows[0].RecipientId)
	assert.Equal(t, twoProjects.Id, rows[1].RecipientId)
}

func TestExecutePartialFailureAndRetry(t *testing.T) {
	f := newCampaignFixture(t)
	f.recipient(t, "alice", true)
	_, bobAddr := f.recipient(t, "bob", true)
	f.recipient(t, "carol", true)

	pool := int64(3_000)
	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", pool)

	f.ledger.failFor[bobAddr] = errors.New("destination account does not exist")
	summary, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Settled)
	assert.Equal(t, 1, summary.Pending)
	assert.False(t, summary.Completed)

	// one failed transfer does not block the others or lose its row
	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusExecuting, reloaded.Status)

	var owed model.CampaignDistributionModel
	require.NoError(t, f.db.Where("campaign_id = ? AND recipient_address = ?", campaign.Id, bobAddr).
		First(&owed).Error)
	assert.Empty(t, owed.TxHash)
	assert.Equal(t, int64(1_000), owed.AmountStroops)

	delete(f.ledger.failFor, bobAddr)
	retry, err := f.logic.RetryPending(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Settled)
	assert.Equal(t, 0, retry.Pending)
	assert.True(t, retry.Completed)

	// the retried row keeps its original amount
	require.NoError(t, f.db.Where("campaign_id = ? AND recipient_address = ?", campaign.Id, bobAddr).
		First(&owed).Error)
	assert.NotEmpty(t, owed.TxHash)
	assert.Equal(t, int64(1_000), owed.AmountStroops)

	var total int64
	for _, row := range f.distributions(t, campaign.Id) {
		total += row.AmountStroops
	}
	assert.Equal(t, pool, total)

	// completed campaigns are no longer retryable
	_, err = f.logic.RetryPending(context.Background(), campaign.Id)
	require.ErrorIs(t, err, ErrNotExecuting)
}

func TestRetryPendingResumesInterruptedExecution(t *testing.T) {
	f := newCampaignFixture(t)
	f.recipient(t, "alice", true)
	f.recipient(t, "bob", true)

	pool := int64(2_001)
	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", pool)

	// every transfer fails: the run ends executing with its full row set owed,
	// which is exactly the state the settle task resumes from
	f.ledger.failAll = errors.New("horizon unavailable")
	summary, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pending)
	assert.False(t, summary.Completed)

	before := f.distributions(t, campaign.Id)
	require.Len(t, before, 2)

	f.ledger.failAll = nil
	retry, err := f.logic.RetryPending(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Settled)
	assert.Equal(t, 0, retry.Pending)
	assert.True(t, retry.Completed)

	// resumed rows keep their identity and amounts, and the total stays the pool
	after := f.distributions(t, campaign.Id)
	require.Len(t, after, 2)
	var total int64
	for i := range after {
		assert.Equal(t, before[i].Id, after[i].Id)
		assert.Equal(t, before[i].AmountStroops, after[i].AmountStroops)
		assert.NotEmpty(t, after[i].TxHash)
		total += after[i].AmountStroops
	}
	assert.Equal(t, pool, total)

	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusCompleted, reloaded.Status)
}

func TestRetryPendingHoldsUnderspentCampaign(t *testing.T) {
	f := newCampaignFixture(t)
	alice, aliceAddr := f.recipient(t, "alice", true)
	bob, bobAddr := f.recipient(t, "bob", true)
	f.recipient(t, "carol", true)
	f.recipient(t, "dave", true)
	f.recipient(t, "erin", true)

	// hand-seed a damaged image: executing with rows for only 2 of 5 recipients.
	// settlement pays what is owed but must never complete an underspent pool
	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", 5_000)
	require.NoError(t, f.db.Model(campaign).Update("status", model.CampaignStatusExecuting).Error)
	require.NoError(t, f.db.Create(&model.CampaignDistributionModel{
		CampaignId: campaign.Id, RecipientId: alice.Id, RecipientAddress: aliceAddr, AmountStroops: 1_000,
	}).Error)
	require.NoError(t, f.db.Create(&model.CampaignDistributionModel{
		CampaignId: campaign.Id, RecipientId: bob.Id, RecipientAddress: bobAddr, AmountStroops: 1_000,
	}).Error)

	summary, err := f.logic.RetryPending(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Settled)
	assert.False(t, summary.Completed)

	for _, row := range f.distributions(t, campaign.Id) {
		assert.NotEmpty(t, row.TxHash)
	}

	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusExecuting, reloaded.Status)
	assert.Empty(t, f.notifier.byType(notify.EventCampaignCompleted))

	// the refusal is stable across further settle rounds
	again, err := f.logic.RetryPending(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Settled)
	assert.False(t, again.Completed)
}

func TestRetryPendingRefusesEmptyRowSet(t *testing.T) {
	f := newCampaignFixture(t)
	f.recipient(t, "alice", true)

	// executing with no rows at all: nothing to settle, nothing to complete
	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", 1_000)
	require.NoError(t, f.db.Model(campaign).Update("status", model.CampaignStatusExecuting).Error)

	summary, err := f.logic.RetryPending(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Settled)
	assert.False(t, summary.Completed)

	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusExecuting, reloaded.Status)
	assert.Equal(t, 0, f.ledger.paymentCount())
	assert.Empty(t, f.notifier.byType(notify.EventCampaignCompleted))
}

func TestExecuteFailedEvaluationLeavesNoTrace(t *testing.T) {
	f := newCampaignFixture(t)
	alice, aliceAddr := f.recipient(t, "alice", true)

	rosterErr := errors.New("roster service down")
	f.logic.RegisterPredicate("roster", func(db *gorm.DB) ([]Recipient, error) {
		if rosterErr != nil {
			return nil, rosterErr
		}
		return []Recipient{{StudentId: alice.Id, Address: aliceAddr}}, nil
	})

	campaign := f.campaign(t, model.CriteriaCustom, "roster", 500)
	_, err := f.logic.Execute(context.Background(), campaign.Id)
	require.Error(t, err)

	// the failed attempt rolls back both the status claim and any rows
	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusActive, reloaded.Status)
	assert.Empty(t, f.distributions(t, campaign.Id))

	rosterErr = nil
	summary, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.True(t, summary.Completed)
}

func TestExecuteCustomPredicate(t *testing.T) {
	f := newCampaignFixture(t)
	alice, aliceAddr := f.recipient(t, "alice", false)

	f.logic.RegisterPredicate("honor_roll", func(db *gorm.DB) ([]Recipient, error) {
		return []Recipient{
			{StudentId: alice.Id, Address: aliceAddr},
			{StudentId: alice.Id, Address: aliceAddr}, // duplicates are collapsed
			{StudentId: 42, Address: ""},              // no wallet, skipped
		}, nil
	})

	campaign := f.campaign(t, model.CriteriaCustom, "honor_roll", 500)
	summary, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecipientCount)
	assert.True(t, summary.Completed)

	unknown := f.campaign(t, model.CriteriaCustom, "nonexistent", 500)
	_, err = f.logic.Execute(context.Background(), unknown.Id)
	require.ErrorIs(t, err, ErrUnknownPredicate)

	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, unknown.Id).Error)
	assert.Equal(t, model.CampaignStatusActive, reloaded.Status)
}

func TestPauseAndResume(t *testing.T) {
	f := newCampaignFixture(t)
	f.recipient(t, "alice", true)

	// active -> paused -> active when nothing has been recorded yet
	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", 100)
	require.NoError(t, f.logic.Pause(campaign.Id))
	var reloaded model.CampaignModel
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusPaused, reloaded.Status)

	require.NoError(t, f.logic.Resume(campaign.Id))
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusActive, reloaded.Status)

	// executing with owed rows resumes to executing for the settle task
	f.ledger.failAll = errors.New("horizon unavailable")
	_, err := f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)
	require.NoError(t, f.logic.Pause(campaign.Id))
	require.NoError(t, f.logic.Resume(campaign.Id))
	require.NoError(t, f.db.First(&reloaded, campaign.Id).Error)
	assert.Equal(t, model.CampaignStatusExecuting, reloaded.Status)

	// resume only applies to paused campaigns
	require.Error(t, f.logic.Resume(campaign.Id))

	// completed campaigns cannot be paused
	require.NoError(t, f.db.Model(campaign).Update("status", model.CampaignStatusCompleted).Error)
	require.Error(t, f.logic.Pause(campaign.Id))

	require.ErrorIs(t, f.logic.Pause(999), ErrCampaignNotFound)
	require.ErrorIs(t, f.logic.Resume(999), ErrCampaignNotFound)
}

func TestGetCampaign(t *testing.T) {
	f := newCampaignFixture(t)
	f.recipient(t, "alice", true)
	f.recipient(t, "bob", true)

	_, _, err := f.logic.GetCampaign(999)
	require.ErrorIs(t, err, ErrCampaignNotFound)

	campaign := f.campaign(t, model.CriteriaVerifiedStudents, "", 200)
	_, err = f.logic.Execute(context.Background(), campaign.Id)
	require.NoError(t, err)

	found, rows, err := f.logic.GetCampaign(campaign.Id)
	require.NoError(t, err)
	assert.Equal(t, campaign.Id, found.Id)
	require.Len(t, rows, 2)
	assert.LessOrEqual(t, rows[0].Id, rows[1].Id)
}
