package logic

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kevrollin/fhs/internal/attest"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// escrowFixture bundles the escrow logic under test with its collaborators.
type escrowFixture struct {
	db       *gorm.DB
	ledger   *fakeLedger
	notifier *fakeNotifier
	logic    *EscrowLogic
	attestKP *keypair.Full
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	db := newTestDB(t)
	fake := newFakeLedger()
	notifier := &fakeNotifier{}
	kp := keypair.MustRandom()
	verifier, err := attest.NewStellarVerifier(kp.Address())
	require.NoError(t, err)
	return &escrowFixture{
		db:       db,
		ledger:   fake,
		notifier: notifier,
		logic:    NewEscrowLogic(db, fake, verifier, notifier),
		attestKP: kp,
	}
}

// sign produces a valid attestation for releasing the given milestone.
func (f *escrowFixture) sign(t *testing.T, m *model.MilestoneModel, recipient string) []byte {
	t.Helper()
	signature, err := f.attestKP.Sign(attest.Payload(m.ProjectId, m.Id, m.AmountStroops, recipient))
	require.NoError(t, err)
	return signature
}

func (f *escrowFixture) milestone(t *testing.T, projectId int64, position int, amountStroops int64) *model.MilestoneModel {
	t.Helper()
	m := &model.MilestoneModel{
		ProjectId:     projectId,
		Position:      position,
		Title:         fmt.Sprintf("Milestone %d", position),
		AmountStroops: amountStroops,
	}
	require.NoError(t, f.logic.RegisterMilestone(m))
	return m
}

func (f *escrowFixture) deposit(t *testing.T, projectId, amountStroops int64, txHash string) {
	t.Helper()
	_, err := f.logic.RecordDeposit(projectId, "GDONOR", amountStroops, txHash)
	require.NoError(t, err)
}

func TestRegisterMilestoneValidation(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 1_000_000_000, model.ProjectStatusActive)

	err := f.logic.RegisterMilestone(&model.MilestoneModel{
		ProjectId: 999, Position: 1, Title: "m", AmountStroops: 100,
	})
	require.ErrorIs(t, err, ErrProjectNotFound)

	err = f.logic.RegisterMilestone(&model.MilestoneModel{
		ProjectId: project.Id, Position: 1, Title: "m", AmountStroops: 0,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = f.logic.RegisterMilestone(&model.MilestoneModel{
		ProjectId: project.Id, Position: 0, Title: "m", AmountStroops: 100,
	})
	require.Error(t, err)

	f.milestone(t, project.Id, 1, 100)
	err = f.logic.RegisterMilestone(&model.MilestoneModel{
		ProjectId: project.Id, Position: 1, Title: "dup", AmountStroops: 100,
	})
	require.ErrorIs(t, err, ErrDuplicatePosition)
}

func TestRecordDepositIdempotent(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 1_000_000_000, model.ProjectStatusActive)

	first, err := f.logic.RecordDeposit(project.Id, "GDONOR", 500, "deposit-tx-1")
	require.NoError(t, err)

	// the same ledger transaction reported twice is recorded once
	second, err := f.logic.RecordDeposit(project.Id, "GDONOR", 500, "deposit-tx-1")
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)

	var count int64
	require.NoError(t, f.db.Model(&model.EscrowDepositModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = f.logic.RecordDeposit(project.Id, "GDONOR", 0, "deposit-tx-2")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.logic.RecordDeposit(999, "GDONOR", 500, "deposit-tx-3")
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestEscrowStatusAccounting(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 10_000_000_000, model.ProjectStatusActive)
	recipient := keypair.MustRandom().Address()

	f.deposit(t, project.Id, 1_000_000_000, "deposit-tx-1")
	f.deposit(t, project.Id, 500_000_000, "deposit-tx-2")

	m := f.milestone(t, project.Id, 1, 300_000_000)
	_, err := f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, f.sign(t, m, recipient))
	require.NoError(t, err)

	status, err := f.logic.Status(project.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000_000), status.DepositedStroops)
	assert.Equal(t, int64(300_000_000), status.ReleasedStroops)
	assert.Equal(t, int64(1_200_000_000), status.BalanceStroops)

	_, err = f.logic.Status(999)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestReleaseMilestoneInOrder(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 10_000_000_000, model.ProjectStatusActive)
	recipient := keypair.MustRandom().Address()

	first := f.milestone(t, project.Id, 1, 100_000_000)
	second := f.milestone(t, project.Id, 2, 200_000_000)
	f.deposit(t, project.Id, 1_000_000_000, "deposit-tx-1")

	// position 2 cannot release before position 1, regardless of balance
	_, err := f.logic.ReleaseMilestone(context.Background(), second.Id, recipient, f.sign(t, second, recipient))
	require.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 0, f.ledger.paymentCount())

	receipt, err := f.logic.ReleaseMilestone(context.Background(), first.Id, recipient, f.sign(t, first, recipient))
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TxHash)

	_, err = f.logic.ReleaseMilestone(context.Background(), second.Id, recipient, f.sign(t, second, recipient))
	require.NoError(t, err)

	payments := f.ledger.paymentsTo(recipient)
	require.Len(t, payments, 2)
	assert.Equal(t, ledger.AccountEscrow, payments[0].From)
	assert.Equal(t, int64(100_000_000), payments[0].AmountStroops)
	assert.Equal(t, fmt.Sprintf("ms:%d", first.Id), payments[0].Memo)
	assert.Equal(t, int64(200_000_000), payments[1].AmountStroops)
}

func TestReleaseMilestoneInsufficientEscrow(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 10_000_000_000, model.ProjectStatusActive)
	recipient := keypair.MustRandom().Address()

	// milestone of 200 XLM against 150 XLM deposited
	m := f.milestone(t, project.Id, 1, 2_000_000_000)
	f.deposit(t, project.Id, 1_500_000_000, "deposit-tx-1")

	_, err := f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, f.sign(t, m, recipient))
	require.ErrorIs(t, err, ErrInsufficientEscrow)
	assert.Equal(t, 0, f.ledger.paymentCount())

	// a further 100 XLM deposit covers the target and the release succeeds
	f.deposit(t, project.Id, 1_000_000_000, "deposit-tx-2")
	_, err = f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, f.sign(t, m, recipient))
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.paymentCount())
}

func TestReleaseMilestoneCumulativeGate(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 10_000_000_000, model.ProjectStatusActive)
	recipient := keypair.MustRandom().Address()

	first := f.milestone(t, project.Id, 1, 1_000_000_000)
	second := f.milestone(t, project.Id, 2, 500_000_000)
	f.deposit(t, project.Id, 1_000_000_000, "deposit-tx-1")

	_, err := f.logic.ReleaseMilestone(context.Background(), first.Id, recipient, f.sign(t, first, recipient))
	require.NoError(t, err)

	// deposits must cover the cumulative target through position 2
	_, err = f.logic.ReleaseMilestone(context.Background(), second.Id, recipient, f.sign(t, second, recipient))
	require.ErrorIs(t, err, ErrInsufficientEscrow)

	f.deposit(t, project.Id, 500_000_000, "deposit-tx-2")
	_, err = f.logic.ReleaseMilestone(context.Background(), second.Id, recipient, f.sign(t, second, recipient))
	require.NoError(t, err)
}

func TestReleaseMilestoneOnce(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 10_000_000_000, model.ProjectStatusActive)
	recipient := keypair.MustRandom().Address()

	m := f.milestone(t, project.Id, 1, 100_000_000)
	f.deposit(t, project.Id, 1_000_000_000, "deposit-tx-1")

	_, err := f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, f.sign(t, m, recipient))
	require.NoError(t, err)

	// the released latch is checked before anything else
	_, err = f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, []byte("garbage"))
	require.ErrorIs(t, err, ErrAlreadyReleased)
	assert.Equal(t, 1, f.ledger.paymentCount())

	_, err = f.logic.ReleaseMilestone(context.Background(), 999, recipient, []byte("garbage"))
	require.ErrorIs(t, err, ErrMilestoneNotFound)
}

func TestReleaseMilestoneInvalidAttestation(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 10_000_000_000, model.ProjectStatusActive)
	recipient := keypair.MustRandom().Address()

	m := f.milestone(t, project.Id, 1, 100_000_000)
	f.deposit(t, project.Id, 1_000_000_000, "deposit-tx-1")

	// signed by the wrong key
	wrongKP := keypair.MustRandom()
	badSig, err := wrongKP.Sign(attest.Payload(m.ProjectId, m.Id, m.AmountStroops, recipient))
	require.NoError(t, err)
	_, err = f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, badSig)
	require.ErrorIs(t, err, ErrInvalidAttestation)

	// signed over a different amount
	tamperedSig, err := f.attestKP.Sign(attest.Payload(m.ProjectId, m.Id, m.AmountStroops+1, recipient))
	require.NoError(t, err)
	_, err = f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, tamperedSig)
	require.ErrorIs(t, err, ErrInvalidAttestation)

	// signed for a different recipient
	otherRecipient := keypair.MustRandom().Address()
	_, err = f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, f.sign(t, m, otherRecipient))
	require.ErrorIs(t, err, ErrInvalidAttestation)

	// no funds moved for any rejected attestation
	assert.Equal(t, 0, f.ledger.paymentCount())
}

func TestReleaseMilestoneTransferFailure(t *testing.T) {
	f := newEscrowFixture(t)
	student := seedStudent(t, f.db, "alice", true)
	project := seedProject(t, f.db, student.Id, 10_000_000_000, model.ProjectStatusActive)
	recipient := keypair.MustRandom().Address()

	m := f.milestone(t, project.Id, 1, 100_000_000)
	f.deposit(t, project.Id, 1_000_000_000, "deposit-tx-1")

	f.ledger.failAll = errors.New("horizon unavailable")
	_, err := f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, f.sign(t, m, recipient))
	require.Error(t, err)

	// transfer failed, so the milestone stays unreleased and can be retried
	var reloaded model.MilestoneModel
	require.NoError(t, f.db.First(&reloaded, m.Id).Error)
	assert.False(t, reloaded.Released)
	assert.Empty(t, reloaded.TxHash)
	assert.Empty(t, f.notifier.byType(notify.EventMilestoneReleased))

	f.ledger.failAll = nil
	receipt, err := f.logic.ReleaseMilestone(context.Background(), m.Id, recipient, f.sign(t, m, recipient))
	require.NoError(t, err)

	require.NoError(t, f.db.First(&reloaded, m.Id).Error)
	assert.True(t, reloaded.Released)
	assert.Equal(t, receipt.TxHash, reloaded.TxHash)
	assert.Equal(t, recipient, reloaded.Recipient)
	assert.Len(t, f.notifier.byType(notify.EventMilestoneReleased), 1)
}
