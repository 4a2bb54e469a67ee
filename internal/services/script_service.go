// internal/services/script_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/tetuya-iyell/claude3-video-analyzer/internal/errors"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/llm"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
)

// 每分钟的目标文字数范围（设计常量，不可按调用配置）
const (
	minCharsPerMinute = 200
	maxCharsPerMinute = 250
)

// 台本中出现的话者前缀
var speakerPrefixes = []string{"ナレーション:", "れいむ:", "まりさ:"}

// ScriptService 负责台本相关的LLM调用：
// 章结构抽取、台本生成、品质分析与基于反馈的改善
type ScriptService struct {
	LLMService *LLMService
}

// NewScriptService 创建台本服务
func NewScriptService(llmService *LLMService) *ScriptService {
	return &ScriptService{LLMService: llmService}
}

// CalculateExpectedLength 根据动画时长计算目标文字数（取范围中间值）
func CalculateExpectedLength(durationMinutes int) int {
	minChars := durationMinutes * minCharsPerMinute
	maxChars := durationMinutes * maxCharsPerMinute
	return (minChars + maxChars) / 2
}

// ExtractChapters 从章立て解析文本中抽取章结构。
// 以Markdown的「## 」行作为章标题，其后的普通行累积为章概要。
// 未发现任何章结构时返回ExtractionError。
func (s *ScriptService) ExtractChapters(analysisText string) ([]models.Chapter, error) {
	logger := utils.GetLogger()
	logger.Infof("开始抽取章结构")

	var chapters []models.Chapter
	var current *models.Chapter

	for _, line := range strings.Split(analysisText, "\n") {
		if strings.HasPrefix(line, "## ") {
			if current != nil {
				chapters = append(chapters, *current)
			}
			current = &models.Chapter{
				ChapterNum:   len(chapters) + 1,
				ChapterTitle: strings.TrimSpace(strings.TrimPrefix(line, "## ")),
			}
			continue
		}

		// 章内容行累积为概要
		if current != nil && line != "" && !strings.HasPrefix(line, "#") {
			if current.ChapterSummary != "" {
				current.ChapterSummary += "\n" + line
			} else {
				current.ChapterSummary = line
			}
		}
	}

	if current != nil {
		chapters = append(chapters, *current)
	}

	if len(chapters) == 0 {
		return nil, apperrors.NewExtractionError("解析結果に章構造が見つかりませんでした", nil)
	}

	logger.Infof("章结构抽取完成: %d章", len(chapters))
	return chapters, nil
}

// GenerateForChapter 为指定章生成台本。
// 成功时返回status=draft的新记录；失败时不留下任何部分写入。
func (s *ScriptService) GenerateForChapter(ctx context.Context, chapter models.Chapter, durationMinutes int) (*models.ScriptRecord, error) {
	logger := utils.GetLogger()
	targetChars := CalculateExpectedLength(durationMinutes)
	logger.Infof("开始生成台本: 章=%q 目标时长=%d分 目标文字数=%d", chapter.ChapterTitle, durationMinutes, targetChars)

	prompt := fmt.Sprintf(`あなたは不動産の解説動画「ゆっくり不動産」の台本作成アシスタントです。
以下の章情報に基づいて、ゆっくり実況形式の台本を作成してください。

# 章タイトル
%s

# 章の概要
%s

# キャラクター設定
- れいむ: 解説役の女性キャラクター（丁寧な口調）
- まりさ: 質問役の女性キャラクター（砕けた口調）
- ナレーション: 状況説明

# 台本の長さ（最重要要件）
- 台本は%d分の動画用です
- 目標文字数は%d文字程度（1分あたり%d〜%d文字）にしてください

台本形式は「れいむ:」「まりさ:」「ナレーション:」で話者を示してください。
返答は台本のみを含めてください。解説や前置きは不要です。`,
		chapter.ChapterTitle, chapter.ChapterSummary,
		durationMinutes, targetChars, minCharsPerMinute, maxCharsPerMinute)

	resp, err := s.LLMService.CompleteText(ctx, llm.CompletionRequest{
		Prompt:    prompt,
		MaxTokens: 5000, // 最大10分の動画で約2000〜2500文字必要
	})
	if err != nil {
		logger.Errorf("台本生成失败: %v", err)
		return nil, apperrors.NewGenerationError("台本生成に失敗しました", err)
	}

	record := &models.ScriptRecord{
		ChapterIndex:    chapter.ChapterNum - 1,
		ChapterTitle:    chapter.ChapterTitle,
		ChapterSummary:  chapter.ChapterSummary,
		ScriptContent:   SanitizeScript(resp.Text),
		Status:          models.StatusDraft,
		Feedback:        []string{},
		DurationMinutes: durationMinutes,
	}

	logger.Infof("台本生成完成: 章=%q 文字数=%d（目标: %d）",
		chapter.ChapterTitle, utf8.RuneCountInString(record.ScriptContent), targetChars)

	return record, nil
}

// AnalyzeQuality 分析台本品质，返回通过与否及分析说明。
// 纯评估调用，不修改任何状态。
func (s *ScriptService) AnalyzeQuality(ctx context.Context, record *models.ScriptRecord) (bool, string, error) {
	logger := utils.GetLogger()
	logger.Infof("开始台本品质分析: 章=%q", record.ChapterTitle)

	prompt := fmt.Sprintf(`以下のゆっくり不動産の台本を分析し、その品質を評価してください。

# 章タイトル
%s

# 章の概要
%s

# 台本
%s

以下の基準で評価してください：
1. ゆっくり実況の口調になっているか
2. 専門用語が適切に説明されているか
3. 重要なポイントが強調されているか
4. 具体的なアドバイスが含まれているか
5. 台本形式が適切か（「台詞:」で話者を示しているか）

この台本が基準を満たしていると思いますか？「はい」または「いいえ」で答え、その理由を具体的に説明してください。
改善点があれば具体的に指摘してください。`,
		record.ChapterTitle, record.ChapterSummary, record.ScriptContent)

	resp, err := s.LLMService.CompleteText(ctx, llm.CompletionRequest{
		Prompt:    prompt,
		MaxTokens: 1000,
	})
	if err != nil {
		logger.Errorf("台本品质分析失败: %v", err)
		return false, "", apperrors.NewAnalysisError("台本分析に失敗しました", err)
	}

	// 回答冒头的「はい」判定为通过
	head := resp.Text
	if utf8.RuneCountInString(head) > 50 {
		head = string([]rune(head)[:50])
	}
	passed := strings.Contains(head, "はい")

	logger.Infof("台本品质分析完成: 章=%q passed=%v", record.ChapterTitle, passed)
	return passed, resp.Text, nil
}

// Improve 基于累积反馈改善台本，返回改善后的台本文本。
// 改善结果不足目标文字数时自动补充。
func (s *ScriptService) Improve(ctx context.Context, record *models.ScriptRecord, feedback string) (string, error) {
	logger := utils.GetLogger()

	durationMinutes := record.DurationMinutes
	if durationMinutes <= 0 {
		durationMinutes = 3
	}
	targetChars := CalculateExpectedLength(durationMinutes)
	logger.Infof("开始改善台本: 章=%q 目标文字数=%d 累计反馈=%d件",
		record.ChapterTitle, targetChars, len(record.Feedback))

	var feedbackHistory string
	if len(record.Feedback) > 1 {
		feedbackHistory = "\n# これまでのフィードバック履歴\n- " + strings.Join(record.Feedback[:len(record.Feedback)-1], "\n- ") + "\n"
	}

	prompt := fmt.Sprintf(`あなたは不動産の解説動画「ゆっくり不動産」の台本編集アシスタントです。
以下の台本とフィードバックに基づいて、台本を改善してください。

# 台本の長さ（最重要要件）
- 台本は%d分の動画用です
- 【絶対条件】目標文字数は%d文字以上必要です（最低でも1分あたり%d文字）
- 現在の文字数: %d文字
- 文字数が足りない場合は、内容を拡充してください

# 現在の台本
%s
%s
# フィードバック
%s

フィードバックを踏まえて改善した台本を作成してください。台本形式は元の形式を維持してください。
返答は台本のみを含めてください。解説や前置きは不要です。`,
		durationMinutes, targetChars, minCharsPerMinute,
		utf8.RuneCountInString(record.ScriptContent),
		record.ScriptContent, feedbackHistory, feedback)

	resp, err := s.LLMService.CompleteText(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   5000,
		Temperature: 0.7,
	})
	if err != nil {
		logger.Errorf("台本改善失败: %v", err)
		return "", apperrors.NewRevisionError("台本の改善に失敗しました", err)
	}

	improved := SanitizeScript(resp.Text)

	// 文字数不足时补充
	if utf8.RuneCountInString(improved) < targetChars {
		improved = ensureMinimumLength(improved, targetChars, record.ChapterTitle)
	}

	logger.Infof("台本改善完成: 章=%q 文字数=%d", record.ChapterTitle, utf8.RuneCountInString(improved))
	return improved, nil
}

// SanitizeScript 清理LLM输出的台本文本：
// 删除话者台词之前的前书き，剔除含可疑对象引用的行，
// 并在话者切换处插入空行以提高可读性。
func SanitizeScript(scriptText string) string {
	if scriptText == "" {
		return ""
	}

	// 删除AI添加的前书き/说明文
	firstSpeakerIdx := -1
	for _, speaker := range speakerPrefixes {
		if pos := strings.Index(scriptText, speaker); pos >= 0 && (firstSpeakerIdx == -1 || pos < firstSpeakerIdx) {
			firstSpeakerIdx = pos
		}
	}
	if firstSpeakerIdx > 0 {
		scriptText = scriptText[firstSpeakerIdx:]
	}

	// 逐行过滤
	var cleanLines []string
	for _, line := range strings.Split(scriptText, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		// 话者台词行中的可疑标记整行剔除
		if lineHasSpeaker(line) && strings.Contains(line, "<") && strings.Contains(line, ">") {
			continue
		}

		cleanLines = append(cleanLines, line)
	}

	// 话者切换处插入空行
	var formatted []string
	prevSpeaker := ""
	for _, line := range cleanLines {
		currentSpeaker := ""
		for _, speaker := range speakerPrefixes {
			if strings.HasPrefix(line, speaker) {
				currentSpeaker = speaker
				break
			}
		}

		if currentSpeaker != "" && prevSpeaker != "" && currentSpeaker != prevSpeaker {
			formatted = append(formatted, "")
		}

		formatted = append(formatted, line)
		if currentSpeaker != "" {
			prevSpeaker = currentSpeaker
		}
	}

	return strings.Join(formatted, "\n")
}

func lineHasSpeaker(line string) bool {
	for _, speaker := range speakerPrefixes {
		if strings.Contains(line, speaker) {
			return true
		}
	}
	return false
}

// ensureMinimumLength 台本文字数不足时追加补充对话
func ensureMinimumLength(scriptContent string, targetChars int, chapterTitle string) string {
	current := utf8.RuneCountInString(scriptContent)
	if current >= targetChars {
		return scriptContent
	}

	utils.GetLogger().Infof("台本文字数不足: 当前=%d 目标=%d，追加补充内容", current, targetChars)

	supplement := fmt.Sprintf(`

れいむ: では、%sについてもう少し詳しく説明しましょう。

まりさ: はい、お願いします！

れいむ: %sに関して重要なポイントをさらに掘り下げますと、まず施工品質と材料選びが重要です。特に断熱性能は快適な居住環境を左右するため、押さえておくべきポイントです。

まりさ: なるほど！それって具体的にどういうことなの？

れいむ: 例えば、断熱材の種類によって性能が大きく異なります。また、窓の仕様も重要で、ペアガラスや樹脂サッシの採用で大幅に断熱性能が向上します。

まりさ: へぇ〜、そういう細かいところまで考えるんだね！

れいむ: はい。コスト面でも、施工時期や材料の選択によって予算内でより高品質な結果を得ることができます。

まりさ: そういう情報って、これから%sを検討している人には本当に役立つね！`,
		chapterTitle, chapterTitle, chapterTitle)

	return scriptContent + supplement
}
