// internal/awsauth/credentials.go
package awsauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
)

// CredentialManager 管理AWS凭证，在安全令牌失效时提供自动刷新
type CredentialManager struct {
	mu              sync.Mutex
	region          string
	cfg             aws.Config
	lastRefresh     time.Time
	refreshInterval time.Duration
}

// NewCredentialManager 创建凭证管理器并完成首次凭证加载
func NewCredentialManager(ctx context.Context, region string) (*CredentialManager, error) {
	m := &CredentialManager{
		region:          region,
		refreshInterval: time.Hour, // 每小时自动刷新一次
	}

	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

// Config 返回当前的AWS配置
func (m *CredentialManager) Config() aws.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Refresh 重新加载默认凭证链并通过STS验证其有效性
func (m *CredentialManager) Refresh(ctx context.Context) error {
	logger := utils.GetLogger()
	logger.Infof("正在刷新AWS凭证...")

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(m.region))
	if err != nil {
		logger.Errorf("AWS凭证刷新失败: %v", err)
		return err
	}

	// 验证凭证是否有效
	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		logger.Errorf("AWS凭证验证失败: %v", err)
		return err
	}
	logger.Infof("AWS凭证验证成功: %s", aws.ToString(identity.Arn))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.lastRefresh = time.Now()

	return nil
}

// Check 检查凭证有效性，超过刷新间隔时自动刷新
func (m *CredentialManager) Check(ctx context.Context) error {
	m.mu.Lock()
	stale := time.Since(m.lastRefresh) > m.refreshInterval
	m.mu.Unlock()

	if stale {
		return m.Refresh(ctx)
	}
	return nil
}

// CallWithRefresh 执行一次AWS调用；如果因凭证过期失败，刷新凭证后重试一次。
// 第二次失败的错误原样返回，由调用方包装为相应的领域错误。
func (m *CredentialManager) CallWithRefresh(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsCredentialError(err) {
		return err
	}

	utils.GetLogger().Warnf("检测到AWS凭证错误，刷新后重试: %v", err)

	if refreshErr := m.Refresh(ctx); refreshErr != nil {
		return err
	}

	return op(ctx)
}

// 凭证过期类错误的特征片段
var credentialErrorPatterns = []string{
	"security token",
	"expired token",
	"expiredtoken",
	"unrecognized client",
	"unrecognizedclientexception",
	"invalidclienttokenid",
	"credential",
}

// IsCredentialError 根据错误信息判断是否为凭证过期/无效错误
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range credentialErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
