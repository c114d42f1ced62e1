package logic

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/kevrollin/fhs/internal/notify"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the full schema.
// A single connection keeps every query on the same in-memory instance.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.StudentModel{},
		&model.ProjectModel{},
		&model.WalletModel{},
		&model.DonationIntentModel{},
		&model.MilestoneModel{},
		&model.EscrowDepositModel{},
		&model.CampaignModel{},
		&model.CampaignDistributionModel{},
		&model.TaskCursorModel{},
		&model.AnalyticsSummaryModel{},
	))
	return db
}

// fakeNotifier captures published events for assertions.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Publish(_ context.Context, event notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) byType(eventType string) []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Event
	for _, event := range f.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// fakeLedger is an in-memory ledger.Client. Payments succeed unless a
// failure is scripted for the destination address (or for everything).
type fakeLedger struct {
	mu       sync.Mutex
	seq      int
	payments []ledger.PaymentRequest
	balances map[string]int64
	failFor  map[string]error
	failAll  error
}

var _ ledger.Client = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]int64),
		failFor:  make(map[string]error),
	}
}

func (f *fakeLedger) FetchTransactions(_ context.Context, _ string, cursor string, _ int) ([]ledger.Transaction, string, error) {
	return nil, cursor, nil
}

func (f *fakeLedger) FetchTransaction(_ context.Context, _ string) (*ledger.Transaction, error) {
	return nil, ledger.ErrNotFound
}

func (f *fakeLedger) SubmitPayment(_ context.Context, req ledger.PaymentRequest) (*ledger.PaymentReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err, ok := f.failFor[req.To]; ok {
		return nil, err
	}
	f.seq++
	f.payments = append(f.payments, req)
	return &ledger.PaymentReceipt{Hash: fmt.Sprintf("fake-tx-%04d", f.seq), Ledger: int64(f.seq)}, nil
}

func (f *fakeLedger) FetchBalance(_ context.Context, account string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[account]
	if !ok {
		return 0, ledger.ErrNotFound
	}
	return balance, nil
}

func (f *fakeLedger) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

func (f *fakeLedger) paymentsTo(address string) []ledger.PaymentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.PaymentRequest
	for _, payment := range f.payments {
		if payment.To == address {
			out = append(out, payment)
		}
	}
	return out
}

func seedStudent(t *testing.T, db *gorm.DB, name string, verified bool) *model.StudentModel {
	t.Helper()
	student := &model.StudentModel{
		Name:     name,
		Email:    name + "@test.edu",
		School:   "Test University",
		Verified: verified,
	}
	require.NoError(t, db.Create(student).Error)
	return student
}

func seedWallet(t *testing.T, db *gorm.DB, studentId int64, address string) *model.WalletModel {
	t.Helper()
	wallet := &model.WalletModel{StudentId: studentId, Address: address}
	require.NoError(t, db.Create(wallet).Error)
	return wallet
}

func seedProject(t *testing.T, db *gorm.DB, studentId, targetStroops int64, status model.ProjectStatus) *model.ProjectModel {
	t.Helper()
	project := &model.ProjectModel{
		StudentId:           studentId,
		Title:               "Test Project",
		TargetAmountStroops: targetStroops,
		Status:              status,
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

func int64Ptr(v int64) *int64 {
	return &v
}
