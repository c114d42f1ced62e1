package ledger

import (
	"context"
	"errors"
	"fmt"
)

// 平台命名账户约定
const (
	AccountReceiving = "receiving" // 捐赠收款账户（监听入账）
	AccountEscrow    = "escrow"    // 托管账户（里程碑释放出金）
	AccountRewards   = "rewards"   // 奖励账户（活动分发出金）
)

// Transaction 账本入账交易的只读视图，用于捐赠匹配
type Transaction struct {
	Hash          string
	Source        string
	Destination   string
	AmountStroops int64
	Memo          string
	Ledger        int64
	PagingToken   string // 不透明分页标记，持久化后可从断点续扫
	Successful    bool
}

// PaymentRequest 支付请求
type PaymentRequest struct {
	From          string // 平台命名账户（escrow、rewards）
	To            string
	AmountStroops int64
	Memo          string
}

// PaymentReceipt 支付回执
type PaymentReceipt struct {
	Hash   string
	Ledger int64
}

// ErrNotFound 账户或交易不存在
var ErrNotFound = errors.New("not found on ledger")

// SubmissionError 支付提交失败
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("payment submission failed (%s): %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Client 账本客户端接口
// 对账引擎、托管协调器和活动分发引擎都通过它访问账本
type Client interface {
	// FetchTransactions 拉取账户自游标之后的入账交易（升序），返回下一游标
	FetchTransactions(ctx context.Context, account string, cursor string, limit int) ([]Transaction, string, error)

	// FetchTransaction 按交易哈希查询交易，不存在时返回ErrNotFound
	FetchTransaction(ctx context.Context, hash string) (*Transaction, error)

	// SubmitPayment 以平台命名账户为源提交原生资产支付
	SubmitPayment(ctx context.Context, req PaymentRequest) (*PaymentReceipt, error)

	// FetchBalance 查询账户原生资产余额（stroops）
	FetchBalance(ctx context.Context, account string) (int64, error)
}
