package logic

import "errors"

// 错误分三类，处理策略不同:
//   验证错误   同步拒绝，不落库
//   匹配冲突   记录日志后跳过，留待人工处理，绝不自动猜测归属
//   不变量违反 同步拒绝，不产生部分变更
var (
	// 验证错误
	ErrInvalidAmount    = errors.New("金额必须大于0")
	ErrInvalidTarget    = errors.New("必须且只能指定项目捐赠或平台捐赠之一")
	ErrInvalidMethod    = errors.New("支付方式无效或与渠道支付ID不匹配")
	ErrMissingPaymentId = errors.New("法币捐赠必须携带渠道支付ID")
	ErrInvalidCriteria  = errors.New("不支持的活动资格条件")

	// 匹配冲突
	ErrInconsistentMatch = errors.New("交易与已封存的捐赠终态不一致")
	ErrDuplicateClaim    = errors.New("交易哈希已被其他捐赠意向占用")

	// 不变量违反
	ErrAlreadyConfirmed     = errors.New("捐赠意向已确认，状态不可回退")
	ErrProjectNotAccepting  = errors.New("项目不在进行中，无法接受捐赠")
	ErrAlreadyReleased      = errors.New("里程碑已释放")
	ErrOutOfOrder           = errors.New("存在未释放的前置里程碑")
	ErrInsufficientEscrow   = errors.New("托管入金不足以覆盖累计释放目标")
	ErrInvalidAttestation   = errors.New("认证签名校验失败")
	ErrDuplicatePosition    = errors.New("里程碑序号已存在")
	ErrNotActive            = errors.New("活动不在待执行状态")
	ErrNotExecuting         = errors.New("活动不在执行中状态")
	ErrNoEligibleRecipients = errors.New("没有符合资格条件的接收人")
	ErrUnknownPredicate     = errors.New("未注册的自定义资格断言")

	// 记录不存在
	ErrIntentNotFound    = errors.New("捐赠意向不存在")
	ErrProjectNotFound   = errors.New("项目不存在")
	ErrMilestoneNotFound = errors.New("里程碑不存在")
	ErrCampaignNotFound  = errors.New("活动不存在")
)
