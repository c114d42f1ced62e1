package attest

import (
	"fmt"

	"github.com/stellar/go/keypair"
)

// Verifier 里程碑释放认证校验器
// 校验能力作为单一可注入边界，签名后端可替换
type Verifier interface {
	Verify(payload []byte, signature []byte) bool
}

// Payload 构造里程碑释放授权的规范负载
// 格式: 项目ID|里程碑ID|金额(stroops)|收款地址
func Payload(projectId, milestoneId, amountStroops int64, recipient string) []byte {
	return []byte(fmt.Sprintf("%d|%d|%d|%s", projectId, milestoneId, amountStroops, recipient))
}

// StellarVerifier 基于Stellar公钥的ed25519签名校验器
type StellarVerifier struct {
	kp *keypair.FromAddress
}

// NewStellarVerifier 创建签名校验器
func NewStellarVerifier(address string) (*StellarVerifier, error) {
	kp, err := keypair.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("invalid attestation public key: %w", err)
	}
	return &StellarVerifier{kp: kp}, nil
}

// Verify 校验签名
func (v *StellarVerifier) Verify(payload []byte, signature []byte) bool {
	return v.kp.Verify(payload, signature) == nil
}
