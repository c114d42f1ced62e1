package task

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

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

func testConfig() *config.Config {
	return &config.Config{
		Stellar: config.StellarConfig{
			Accounts: map[string]config.AccountConfig{
				"receiving": {Address: "GRECV", Watch: true},
				"escrow":    {Address: "GESCROW"},
				"rewards":   {Address: "GREWARDS"},
			},
		},
		Task: config.TaskConfig{
			ReconcileInterval:      120,
			WalletSyncInterval:     300,
			AnalyticsInterval:      600,
			CampaignSettleInterval: 300,
			FetchLimit:             10,
			MaxPages:               5,
			DonationExpiryHours:    24,
		},
	}
}

// ledgerPage is one scripted page of ledger transactions keyed by cursor.
type ledgerPage struct {
	txs  []ledger.Transaction
	next string
}

// fakeLedger scripts FetchTransactions by cursor and records submitted payments.
type fakeLedger struct {
	mu         sync.Mutex
	pages      map[string]ledgerPage
	fetchCalls []string
	fetchErr   error
	balances   map[string]int64
	balanceErr map[string]error
	seq        int
	payments   []ledger.PaymentRequest
	submitErr  error
}

var _ ledger.Client = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		pages:      make(map[string]ledgerPage),
		balances:   make(map[string]int64),
		balanceErr: make(map[string]error),
	}
}

func (f *fakeLedger) FetchTransactions(_ context.Context, _ string, cursor string, _ int) ([]ledger.Transaction, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, cursor)
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	page, ok := f.pages[cursor]
	if !ok {
		return nil, cursor, nil
	}
	return page.txs, page.next, nil
}

func (f *fakeLedger) FetchTransaction(_ context.Context, _ string) (*ledger.Transaction, error) {
	return nil, ledger.ErrNotFound
}

func (f *fakeLedger) SubmitPayment(_ context.Context, req ledger.PaymentRequest) (*ledger.PaymentReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.seq++
	f.payments = append(f.payments, req)
	return &ledger.PaymentReceipt{Hash: fmt.Sprintf("fake-tx-%04d", f.seq), Ledger: int64(f.seq)}, nil
}

func (f *fakeLedger) FetchBalance(_ context.Context, account string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.balanceErr[account]; ok {
		return 0, err
	}
	balance, ok := f.balances[account]
	if !ok {
		return 0, ledger.ErrNotFound
	}
	return balance, nil
}

// incomingTx builds a successful native payment into the watched account.
func incomingTx(hash, memo string, amountStroops int64) ledger.Transaction {
	return ledger.Transaction{
		Hash:          hash,
		Source:        "GDONOR",
		Destination:   "GRECV",
		AmountStroops: amountStroops,
		Memo:          memo,
		Successful:    true,
		PagingToken:   hash + "-pt",
	}
}
