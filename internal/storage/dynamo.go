// internal/storage/dynamo.go
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/awsauth"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
)

// DynamoClient 负责台本记录在共享DynamoDB表中的保存与读取。
// 表以 script_id 为主键，(session_id, chapter_index) 作为逻辑复合键。
type DynamoClient struct {
	enabled     bool
	tableName   string
	credentials *awsauth.CredentialManager
}

// scriptItem DynamoDB中的台本条目
type scriptItem struct {
	ScriptID        string   `dynamodbav:"script_id"`
	SessionID       string   `dynamodbav:"session_id"`
	ChapterIndex    int      `dynamodbav:"chapter_index"`
	ChapterTitle    string   `dynamodbav:"chapter_title"`
	ChapterSummary  string   `dynamodbav:"chapter_summary"`
	ScriptContent   string   `dynamodbav:"script_content"`
	ImprovedScript  string   `dynamodbav:"improved_script,omitempty"`
	Status          string   `dynamodbav:"status"`
	PriorStatus     string   `dynamodbav:"prior_status,omitempty"`
	Feedback        []string `dynamodbav:"feedback"`
	Analysis        string   `dynamodbav:"analysis,omitempty"`
	Passed          *bool    `dynamodbav:"passed,omitempty"`
	DurationMinutes int      `dynamodbav:"duration_minutes"`
	CreatedAt       string   `dynamodbav:"created_at"`
	UpdatedAt       string   `dynamodbav:"updated_at"`
}

// NewDynamoClient 创建DynamoDB客户端。
// enabled为false时返回的客户端所有操作均为空操作。
func NewDynamoClient(enabled bool, tableName string, credentials *awsauth.CredentialManager) *DynamoClient {
	if !enabled {
		utils.GetLogger().Infof("DynamoDB同步未启用，台本不会写入远程表")
	}
	return &DynamoClient{
		enabled:     enabled,
		tableName:   tableName,
		credentials: credentials,
	}
}

// Enabled 远程同步是否可用
func (c *DynamoClient) Enabled() bool {
	return c.enabled && c.credentials != nil
}

func (c *DynamoClient) client() *dynamodb.Client {
	return dynamodb.NewFromConfig(c.credentials.Config())
}

// findItem 按 (session_id, chapter_index) 查找既有条目
func (c *DynamoClient) findItem(ctx context.Context, sessionID string, chapterIndex int) (*scriptItem, error) {
	var output *dynamodb.ScanOutput
	err := c.credentials.CallWithRefresh(ctx, func(ctx context.Context) error {
		var callErr error
		output, callErr = c.client().Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(c.tableName),
			FilterExpression: aws.String("session_id = :sid AND chapter_index = :idx"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":sid": &ddbtypes.AttributeValueMemberS{Value: sessionID},
				":idx": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", chapterIndex)},
			},
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if len(output.Items) == 0 {
		return nil, nil
	}

	var item scriptItem
	if err := attributevalue.UnmarshalMap(output.Items[0], &item); err != nil {
		return nil, fmt.Errorf("解析DynamoDB条目失败: %w", err)
	}
	return &item, nil
}

// SaveScript 保存台本到DynamoDB，返回script_id。
// 既有条目的feedback与新数据合并去重后保留，分析结果缺失时沿用既有值。
func (c *DynamoClient) SaveScript(ctx context.Context, sessionID string, chapterIndex int, record *models.ScriptRecord) (string, error) {
	if !c.Enabled() {
		return "dynamodb-disabled", nil
	}

	logger := utils.GetLogger()

	existing, err := c.findItem(ctx, sessionID, chapterIndex)
	if err != nil {
		// 查找失败不阻止保存，按新建处理
		logger.Warnf("既有台本检索失败，按新建保存: %v", err)
		existing = nil
	}

	scriptID := fmt.Sprintf("%s_%d_%s", sessionID, chapterIndex, uuid.New().String()[:8])
	createdAt := time.Now().Format(time.RFC3339)
	if existing != nil {
		scriptID = existing.ScriptID
		if existing.CreatedAt != "" {
			createdAt = existing.CreatedAt
		}
	}

	item := scriptItem{
		ScriptID:        scriptID,
		SessionID:       sessionID,
		ChapterIndex:    chapterIndex,
		ChapterTitle:    record.ChapterTitle,
		ChapterSummary:  record.ChapterSummary,
		ScriptContent:   record.ScriptContent,
		ImprovedScript:  record.ImprovedScript,
		Status:          string(record.Status),
		PriorStatus:     string(record.PriorStatus),
		Feedback:        record.Feedback,
		Analysis:        record.Analysis,
		Passed:          record.Passed,
		DurationMinutes: record.DurationMinutes,
		CreatedAt:       createdAt,
		UpdatedAt:       time.Now().Format(time.RFC3339),
	}

	if existing != nil {
		item.Feedback = mergeFeedback(existing.Feedback, record.Feedback)
		// 分析结果缺失时沿用既有值
		if item.Analysis == "" && existing.Analysis != "" {
			item.Analysis = existing.Analysis
			item.Passed = existing.Passed
		}
	}
	if item.Feedback == nil {
		item.Feedback = []string{}
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return "", fmt.Errorf("序列化DynamoDB条目失败: %w", err)
	}

	err = c.credentials.CallWithRefresh(ctx, func(ctx context.Context) error {
		_, callErr := c.client().PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(c.tableName),
			Item:      av,
		})
		return callErr
	})
	if err != nil {
		return "", err
	}

	logger.Infof("台本已保存到DynamoDB: script_id=%s chapter_index=%d feedback=%d件",
		scriptID, chapterIndex, len(item.Feedback))

	return scriptID, nil
}

// GetScript 按 (session_id, chapter_index) 读取远程台本，未找到时返回nil
func (c *DynamoClient) GetScript(ctx context.Context, sessionID string, chapterIndex int) (*models.ScriptRecord, error) {
	if !c.Enabled() {
		return nil, nil
	}

	item, err := c.findItem(ctx, sessionID, chapterIndex)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	return item.toRecord(), nil
}

// GetScriptsBySession 读取会话下的全部台本，按章节索引排序
func (c *DynamoClient) GetScriptsBySession(ctx context.Context, sessionID string) ([]*models.ScriptRecord, error) {
	if !c.Enabled() {
		return nil, nil
	}

	var output *dynamodb.ScanOutput
	err := c.credentials.CallWithRefresh(ctx, func(ctx context.Context) error {
		var callErr error
		output, callErr = c.client().Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(c.tableName),
			FilterExpression: aws.String("session_id = :sid"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":sid": &ddbtypes.AttributeValueMemberS{Value: sessionID},
			},
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	records := make([]*models.ScriptRecord, 0, len(output.Items))
	for _, raw := range output.Items {
		var item scriptItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			continue
		}
		records = append(records, item.toRecord())
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ChapterIndex < records[j].ChapterIndex
	})

	return records, nil
}

func (it *scriptItem) toRecord() *models.ScriptRecord {
	createdAt, _ := time.Parse(time.RFC3339, it.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, it.UpdatedAt)

	return &models.ScriptRecord{
		ScriptID:        it.ScriptID,
		SessionID:       it.SessionID,
		ChapterIndex:    it.ChapterIndex,
		ChapterTitle:    it.ChapterTitle,
		ChapterSummary:  it.ChapterSummary,
		ScriptContent:   it.ScriptContent,
		ImprovedScript:  it.ImprovedScript,
		Status:          models.ScriptStatus(it.Status),
		PriorStatus:     models.ScriptStatus(it.PriorStatus),
		Feedback:        it.Feedback,
		Analysis:        it.Analysis,
		Passed:          it.Passed,
		DurationMinutes: it.DurationMinutes,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
}

// mergeFeedback 合并既有与新增反馈，去重并保持先后顺序
func mergeFeedback(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))

	for _, fb := range existing {
		if !seen[fb] {
			seen[fb] = true
			merged = append(merged, fb)
		}
	}
	for _, fb := range incoming {
		if !seen[fb] {
			seen[fb] = true
			merged = append(merged, fb)
		}
	}

	return merged
}
