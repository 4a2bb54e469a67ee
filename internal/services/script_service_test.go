// internal/services/script_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/tetuya-iyell/claude3-video-analyzer/internal/errors"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/llm"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
)

// fakeProvider 测试用的LLM提供者，记录最后一次请求
type fakeProvider struct {
	text    string
	err     error
	lastReq llm.CompletionRequest
}

func (f *fakeProvider) Initialize(config map[string]string) error { return nil }

func (f *fakeProvider) GetName() string { return "fake" }

func (f *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text, ProviderName: "fake"}, nil
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.StreamResponse, 2)
	ch <- llm.StreamResponse{Text: f.text}
	ch <- llm.StreamResponse{Done: true}
	close(ch)
	return ch, nil
}

func newFakeLLMService(provider llm.Provider) *LLMService {
	return &LLMService{
		provider:     provider,
		providerName: "fake",
		defaultModel: "test-model",
		isReady:      true,
		readyState:   "就绪",
	}
}

func TestExtractChapters(t *testing.T) {
	svc := NewScriptService(nil)

	analysisText := `# 動画全体の説明
この動画は賃貸物件の内見映像です。

## 物件の概要
駅から徒歩5分の1LDKです。
築年数は10年です。

## 内装の特徴
リビングは南向きで日当たりが良好です。

## まとめ
コストパフォーマンスの高い物件です。`

	chapters, err := svc.ExtractChapters(analysisText)
	if err != nil {
		t.Fatalf("章构造抽取失败: %v", err)
	}

	if len(chapters) != 3 {
		t.Fatalf("应抽取3章，实际为 %d 章", len(chapters))
	}
	if chapters[0].ChapterNum != 1 || chapters[0].ChapterTitle != "物件の概要" {
		t.Fatalf("第一章解析不正确: %+v", chapters[0])
	}
	if !strings.Contains(chapters[0].ChapterSummary, "駅から徒歩5分") {
		t.Fatalf("章概要应累积章内容行: %q", chapters[0].ChapterSummary)
	}
	if !strings.Contains(chapters[0].ChapterSummary, "築年数は10年") {
		t.Fatalf("章概要应包含多行内容: %q", chapters[0].ChapterSummary)
	}
	if chapters[2].ChapterNum != 3 || chapters[2].ChapterTitle != "まとめ" {
		t.Fatalf("章编号应连续递增: %+v", chapters[2])
	}
}

func TestExtractChaptersNoStructure(t *testing.T) {
	svc := NewScriptService(nil)

	_, err := svc.ExtractChapters("章見出しのないただのテキストです。")
	if !apperrors.IsExtractionError(err) {
		t.Fatalf("无章结构时应返回extraction错误，实际为 %v", err)
	}
}

func TestCalculateExpectedLength(t *testing.T) {
	// (200+250)/2 = 225文字/分
	if got := CalculateExpectedLength(1); got != 225 {
		t.Fatalf("1分的目标文字数应为225，实际为 %d", got)
	}
	if got := CalculateExpectedLength(3); got != 675 {
		t.Fatalf("3分的目标文字数应为675，实际为 %d", got)
	}
}

func TestSanitizeScriptRemovesPreamble(t *testing.T) {
	raw := `以下が台本です。ご確認ください。

れいむ: こんにちは、今日は物件を紹介します。
まりさ: よろしくお願いします！`

	cleaned := SanitizeScript(raw)

	if strings.Contains(cleaned, "以下が台本です") {
		t.Fatalf("话者台词之前的前书き应被删除: %q", cleaned)
	}
	if !strings.HasPrefix(cleaned, "れいむ:") {
		t.Fatalf("清理后应以话者行开头: %q", cleaned)
	}
}

func TestSanitizeScriptDropsSuspiciousLines(t *testing.T) {
	raw := `れいむ: こんにちは。
まりさ: <不明なオブジェクト>が見えます。
れいむ: 続けましょう。`

	cleaned := SanitizeScript(raw)

	if strings.Contains(cleaned, "<不明なオブジェクト>") {
		t.Fatalf("含可疑标记的台词行应被剔除: %q", cleaned)
	}
	if !strings.Contains(cleaned, "続けましょう") {
		t.Fatalf("正常台词行应保留: %q", cleaned)
	}
}

func TestSanitizeScriptInsertsBlankLineBetweenSpeakers(t *testing.T) {
	raw := `れいむ: 一つ目の台詞です。
まりさ: 二つ目の台詞です。`

	cleaned := SanitizeScript(raw)

	if !strings.Contains(cleaned, "一つ目の台詞です。\n\nまりさ:") {
		t.Fatalf("话者切换处应插入空行: %q", cleaned)
	}
}

func TestGenerateForChapterBuildsDraft(t *testing.T) {
	provider := &fakeProvider{text: `台本を作成しました。

れいむ: この物件の概要を説明します。
まりさ: お願いします！`}
	svc := NewScriptService(newFakeLLMService(provider))

	chapter := models.Chapter{ChapterNum: 2, ChapterTitle: "内装の特徴", ChapterSummary: "リビングの紹介"}
	record, err := svc.GenerateForChapter(context.Background(), chapter, 3)
	if err != nil {
		t.Fatalf("台本生成失败: %v", err)
	}

	if record.Status != models.StatusDraft {
		t.Fatalf("新记录状态应为draft，实际为 %s", record.Status)
	}
	if record.ChapterIndex != 1 {
		t.Fatalf("章节索引应为ChapterNum-1，实际为 %d", record.ChapterIndex)
	}
	if record.Feedback == nil || len(record.Feedback) != 0 {
		t.Fatalf("新记录的反馈历史应为空切片: %v", record.Feedback)
	}
	if strings.Contains(record.ScriptContent, "台本を作成しました") {
		t.Fatalf("生成结果应经过清理: %q", record.ScriptContent)
	}
	if !strings.Contains(provider.lastReq.Prompt, "内装の特徴") {
		t.Fatal("生成提示中应包含章标题")
	}
	if !strings.Contains(provider.lastReq.Prompt, "675文字程度") {
		t.Fatal("生成提示中应包含目标文字数")
	}
}

func TestGenerateForChapterFailure(t *testing.T) {
	provider := &fakeProvider{err: context.DeadlineExceeded}
	svc := NewScriptService(newFakeLLMService(provider))

	_, err := svc.GenerateForChapter(context.Background(), models.Chapter{ChapterNum: 1, ChapterTitle: "概要"}, 3)
	if !apperrors.IsType(err, apperrors.ErrorTypeGeneration) {
		t.Fatalf("生成失败应包装为generation错误，实际为 %v", err)
	}
}

func TestAnalyzeQualityVerdict(t *testing.T) {
	provider := &fakeProvider{text: "はい、この台本は基準を満たしています。口調も適切です。"}
	svc := NewScriptService(newFakeLLMService(provider))

	record := &models.ScriptRecord{ChapterTitle: "概要", ScriptContent: "れいむ: こんにちは。"}
	passed, analysis, err := svc.AnalyzeQuality(context.Background(), record)
	if err != nil {
		t.Fatalf("品质分析失败: %v", err)
	}
	if !passed {
		t.Fatal("冒头包含「はい」的回答应判定为通过")
	}
	if analysis != provider.text {
		t.Fatal("分析文本应原样返回")
	}

	provider.text = "いいえ、専門用語の説明が不足しています。"
	passed, _, err = svc.AnalyzeQuality(context.Background(), record)
	if err != nil {
		t.Fatalf("品质分析失败: %v", err)
	}
	if passed {
		t.Fatal("「いいえ」的回答应判定为不通过")
	}
}

func TestImproveIncludesFeedbackHistory(t *testing.T) {
	provider := &fakeProvider{text: strings.Repeat("れいむ: 改善後の長い台本です。", 60)}
	svc := NewScriptService(newFakeLLMService(provider))

	record := &models.ScriptRecord{
		ChapterTitle:    "概要",
		ScriptContent:   "れいむ: 元の台本です。",
		Feedback:        []string{"一つ目の指摘", "二つ目の指摘"},
		DurationMinutes: 3,
	}

	improved, err := svc.Improve(context.Background(), record, "二つ目の指摘")
	if err != nil {
		t.Fatalf("台本改善失败: %v", err)
	}
	if improved == "" {
		t.Fatal("改善结果不应为空")
	}

	// 过去的反馈应作为历史出现在提示中
	if !strings.Contains(provider.lastReq.Prompt, "一つ目の指摘") {
		t.Fatal("改善提示中应包含过去的反馈历史")
	}
	if !strings.Contains(provider.lastReq.Prompt, "# フィードバック") {
		t.Fatal("改善提示中应包含本次反馈")
	}
}

func TestImproveSupplementsShortScript(t *testing.T) {
	provider := &fakeProvider{text: "れいむ: 短い改善稿です。"}
	svc := NewScriptService(newFakeLLMService(provider))

	record := &models.ScriptRecord{
		ChapterTitle:    "物件の概要",
		ScriptContent:   "れいむ: 元の台本です。",
		DurationMinutes: 3,
	}

	improved, err := svc.Improve(context.Background(), record, "もっと詳しく")
	if err != nil {
		t.Fatalf("台本改善失败: %v", err)
	}

	if !strings.Contains(improved, "もう少し詳しく説明しましょう") {
		t.Fatalf("文字数不足时应追加补充对话: %q", improved)
	}
	if !strings.Contains(improved, "物件の概要") {
		t.Fatal("补充对话应引用章标题")
	}
}
