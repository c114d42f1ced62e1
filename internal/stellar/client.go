package stellar

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kevrollin/fhs/internal/config"
	"github.com/kevrollin/fhs/internal/ledger"
	"github.com/kevrollin/fhs/internal/logger"
	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/txnbuild"
)

// Account 平台命名账户
type Account struct {
	name    string
	address string
	signer  *keypair.Full // 支付账户持有签名私钥，监听账户为nil
	watch   bool
}

// Client Horizon账本客户端
type Client struct {
	mu         sync.RWMutex
	horizon    *horizonclient.Client
	accounts   map[string]*Account
	passphrase string
	config     config.StellarConfig
}

// Init 初始化Stellar客户端
func Init(cfg config.StellarConfig) (*Client, error) {
	client := &Client{
		accounts: make(map[string]*Account),
		config:   cfg,
	}

	// 1. 初始化Horizon连接
	if err := client.initHorizon(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize horizon client: %w", err)
	}

	// 2. 初始化平台账户
	if err := client.initAccounts(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize accounts: %w", err)
	}

	logger.Info("Stellar client initialized: network=%s, accounts=%d", cfg.Network, len(client.accounts))
	return client, nil
}

// initHorizon 初始化Horizon连接并测试连通性
func (c *Client) initHorizon(cfg config.StellarConfig) error {
	switch cfg.Network {
	case "public":
		c.passphrase = network.PublicNetworkPassphrase
	case "testnet":
		c.passphrase = network.TestNetworkPassphrase
	default:
		return fmt.Errorf("unsupported network: %s", cfg.Network)
	}

	url := cfg.HorizonURL
	if url == "" {
		url = "https://horizon-testnet.stellar.org"
	}

	c.horizon = &horizonclient.Client{
		HorizonURL: url,
		HTTP:       &http.Client{Timeout: time.Second * 30},
	}

	// 测试连接
	root, err := c.horizon.Root()
	if err != nil {
		return fmt.Errorf("horizon connection test failed: %w", err)
	}
	if root.NetworkPassphrase != c.passphrase {
		return fmt.Errorf("horizon network mismatch: got %q, want %q", root.NetworkPassphrase, c.passphrase)
	}

	logger.Info("Connected to horizon: %s (ledger %d)", url, root.HorizonSequence)
	return nil
}

// initAccounts 解析并校验平台账户配置
func (c *Client) initAccounts(cfg config.StellarConfig) error {
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no stellar accounts configured")
	}

	for name, acctCfg := range cfg.Accounts {
		if acctCfg.Address == "" {
			logger.Warn("Skipping account %s: no address configured", name)
			continue
		}
		if _, err := keypair.ParseAddress(acctCfg.Address); err != nil {
			return fmt.Errorf("invalid address for account %s: %w", name, err)
		}

		account := &Account{
			name:    name,
			address: acctCfg.Address,
			watch:   acctCfg.Watch,
		}

		if acctCfg.Seed != "" {
			full, err := keypair.ParseFull(acctCfg.Seed)
			if err != nil {
				return fmt.Errorf("invalid seed for account %s: %w", name, err)
			}
			if full.Address() != acctCfg.Address {
				return fmt.Errorf("seed does not match address for account %s", name)
			}
			account.signer = full
		}

		c.accounts[name] = account
		logger.Info("Initialized account %s: address=%s, signer=%v, watch=%v",
			name, acctCfg.Address, account.signer != nil, acctCfg.Watch)
	}

	if len(c.accounts) == 0 {
		return fmt.Errorf("no usable stellar accounts configured")
	}
	return nil
}

// Account 按名称获取平台账户
func (c *Client) Account(name string) (*Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	account, exists := c.accounts[name]
	if !exists {
		return nil, fmt.Errorf("account %s not configured", name)
	}
	return account, nil
}

// FetchTransactions 拉取账户自游标之后的入账支付（升序），返回下一游标
// 非支付操作和非原生资产支付会被跳过，但仍推进游标
func (c *Client) FetchTransactions(ctx context.Context, account string, cursor string, limit int) ([]ledger.Transaction, string, error) {
	req := horizonclient.OperationRequest{
		ForAccount: account,
		Cursor:     cursor,
		Limit:      uint(limit),
		Order:      horizonclient.OrderAsc,
		Join:       "transactions",
	}

	page, err := c.horizon.Payments(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch payments for %s: %w", account, err)
	}

	next := cursor
	txs := make([]ledger.Transaction, 0, len(page.Embedded.Records))
	for _, rec := range page.Embedded.Records {
		if token := rec.PagingToken(); token != "" {
			next = token
		}

		payment, ok := rec.(operations.Payment)
		if !ok {
			continue
		}
		if payment.Asset.Type != "native" || payment.To != account {
			continue
		}

		stroops, err := amount.ParseInt64(payment.Amount)
		if err != nil {
			logger.Warn("Skipping payment %s with unparsable amount %q: %v",
				payment.TransactionHash, payment.Amount, err)
			continue
		}

		tx := ledger.Transaction{
			Hash:          payment.TransactionHash,
			Source:        payment.From,
			Destination:   payment.To,
			AmountStroops: stroops,
			PagingToken:   payment.PagingToken(),
			Successful:    payment.TransactionSuccessful,
		}
		if payment.Transaction != nil {
			if payment.Transaction.MemoType == "text" {
				tx.Memo = payment.Transaction.Memo
			}
			tx.Ledger = int64(payment.Transaction.Ledger)
		}

		txs = append(txs, tx)
	}

	return txs, next, nil
}

// FetchTransaction 按交易哈希查询交易
func (c *Client) FetchTransaction(ctx context.Context, hash string) (*ledger.Transaction, error) {
	detail, err := c.horizon.TransactionDetail(hash)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", hash, err)
	}

	tx := &ledger.Transaction{
		Hash:        detail.Hash,
		Source:      detail.Account,
		Ledger:      int64(detail.Ledger),
		PagingToken: detail.PT,
		Successful:  detail.Successful,
	}
	if detail.MemoType == "text" {
		tx.Memo = detail.Memo
	}

	// 交易详情不含操作金额，补查第一笔原生支付
	ops, err := c.horizon.Payments(horizonclient.OperationRequest{ForTransaction: hash})
	if err != nil {
		return tx, nil
	}
	for _, rec := range ops.Embedded.Records {
		payment, ok := rec.(operations.Payment)
		if !ok || payment.Asset.Type != "native" {
			continue
		}
		if stroops, perr := amount.ParseInt64(payment.Amount); perr == nil {
			tx.Source = payment.From
			tx.Destination = payment.To
			tx.AmountStroops = stroops
			break
		}
	}

	return tx, nil
}

// SubmitPayment 以平台命名账户为源提交原生资产支付
func (c *Client) SubmitPayment(ctx context.Context, req ledger.PaymentRequest) (*ledger.PaymentReceipt, error) {
	if req.To == "" || req.AmountStroops <= 0 {
		return nil, &ledger.SubmissionError{Op: "validate", Err: fmt.Errorf("invalid destination or amount")}
	}
	if _, err := keypair.ParseAddress(req.To); err != nil {
		return nil, &ledger.SubmissionError{Op: "validate", Err: fmt.Errorf("invalid destination address: %w", err)}
	}

	account, err := c.Account(req.From)
	if err != nil {
		return nil, &ledger.SubmissionError{Op: "account", Err: err}
	}
	if account.signer == nil {
		return nil, &ledger.SubmissionError{Op: "account", Err: fmt.Errorf("account %s has no signing key", req.From)}
	}

	// 拉取最新序列号
	source, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: account.address})
	if err != nil {
		return nil, &ledger.SubmissionError{Op: "sequence", Err: err}
	}

	payment := &txnbuild.Payment{
		Destination: req.To,
		Amount:      amount.StringFromInt64(req.AmountStroops),
		Asset:       txnbuild.NativeAsset{},
	}
	params := txnbuild.TransactionParams{
		SourceAccount:        &source,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{payment},
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(30)},
	}
	if req.Memo != "" {
		params.Memo = txnbuild.MemoText(req.Memo)
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return nil, &ledger.SubmissionError{Op: "build", Err: err}
	}

	signed, err := tx.Sign(c.passphrase, account.signer)
	if err != nil {
		return nil, &ledger.SubmissionError{Op: "sign", Err: err}
	}

	resp, err := c.horizon.SubmitTransaction(signed)
	if err != nil {
		return nil, &ledger.SubmissionError{Op: "submit", Err: err}
	}

	logger.Info("Submitted payment: from=%s, to=%s, amount=%s, tx=%s",
		req.From, req.To, payment.Amount, resp.Hash)

	return &ledger.PaymentReceipt{Hash: resp.Hash, Ledger: int64(resp.Ledger)}, nil
}

// FetchBalance 查询账户原生资产余额（stroops）
func (c *Client) FetchBalance(ctx context.Context, account string) (int64, error) {
	detail, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: account})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return 0, ledger.ErrNotFound
		}
		return 0, fmt.Errorf("failed to fetch account %s: %w", account, err)
	}

	native, err := detail.GetNativeBalance()
	if err != nil {
		return 0, fmt.Errorf("failed to read native balance for %s: %w", account, err)
	}

	stroops, err := amount.ParseInt64(native)
	if err != nil {
		return 0, fmt.Errorf("failed to parse balance %q for %s: %w", native, account, err)
	}
	return stroops, nil
}
