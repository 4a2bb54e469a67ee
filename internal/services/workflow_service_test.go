// internal/services/workflow_service_test.go
package services

import (
	"context"
	"fmt"
	"testing"

	apperrors "github.com/tetuya-iyell/claude3-video-analyzer/internal/errors"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/storage"
)

// fakeGenerator 测试用的台本生成器
type fakeGenerator struct {
	generateCalls int
	generateErr   error
	analyzeCalls  int
	analyzePassed bool
	analyzeText   string
	analyzeErr    error
	improveCalls  int
	improveText   string
	improveErr    error
}

func (f *fakeGenerator) GenerateForChapter(ctx context.Context, chapter models.Chapter, durationMinutes int) (*models.ScriptRecord, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &models.ScriptRecord{
		ChapterIndex:    chapter.ChapterNum - 1,
		ChapterTitle:    chapter.ChapterTitle,
		ChapterSummary:  chapter.ChapterSummary,
		ScriptContent:   fmt.Sprintf("れいむ: %sについて解説します。", chapter.ChapterTitle),
		Status:          models.StatusDraft,
		Feedback:        []string{},
		DurationMinutes: durationMinutes,
	}, nil
}

func (f *fakeGenerator) AnalyzeQuality(ctx context.Context, record *models.ScriptRecord) (bool, string, error) {
	f.analyzeCalls++
	if f.analyzeErr != nil {
		return false, "", f.analyzeErr
	}
	return f.analyzePassed, f.analyzeText, nil
}

func (f *fakeGenerator) Improve(ctx context.Context, record *models.ScriptRecord, feedback string) (string, error) {
	f.improveCalls++
	if f.improveErr != nil {
		return "", f.improveErr
	}
	return f.improveText, nil
}

// fakeRemote 测试用的远程同步
type fakeRemote struct {
	pullRecord *models.ScriptRecord
	pullCalls  int
	pushed     []*models.ScriptRecord
	pushOK     bool
}

func (f *fakeRemote) Pull(ctx context.Context, sessionID string, chapterIndex int) *models.ScriptRecord {
	f.pullCalls++
	if f.pullRecord == nil {
		return nil
	}
	return f.pullRecord.Clone()
}

func (f *fakeRemote) Push(ctx context.Context, sessionID string, chapterIndex int, record *models.ScriptRecord) bool {
	f.pushed = append(f.pushed, record.Clone())
	return f.pushOK
}

func testChapters() []models.Chapter {
	return []models.Chapter{
		{ChapterNum: 1, ChapterTitle: "物件の概要", ChapterSummary: "間取りと立地の紹介"},
		{ChapterNum: 2, ChapterTitle: "内装の特徴", ChapterSummary: "リビングと水回りの紹介"},
	}
}

func newTestWorkflow(gen *fakeGenerator, remote *fakeRemote) *WorkflowService {
	return NewWorkflowService(gen, remote, nil)
}

func TestSelectChapterGeneratesOnce(t *testing.T) {
	gen := &fakeGenerator{}
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	first, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3)
	if err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}
	if first.Status != models.StatusDraft {
		t.Fatalf("新生成的台本状态应为draft，实际为 %s", first.Status)
	}
	if first.ScriptID == "" {
		t.Fatal("新生成的台本应分配ScriptID")
	}

	// 再次选择同一章不应重新生成
	second, err := wf.SelectChapter(ctx, "s1", 0, nil, 3)
	if err != nil {
		t.Fatalf("再次选择章节失败: %v", err)
	}
	if gen.generateCalls != 1 {
		t.Fatalf("同一章应只生成一次，实际生成 %d 次", gen.generateCalls)
	}
	if second.ScriptContent != first.ScriptContent {
		t.Fatal("再次选择应返回已有台本")
	}
}

func TestSelectChapterGenerationFailureLeavesNoRecord(t *testing.T) {
	gen := &fakeGenerator{generateErr: apperrors.NewGenerationError("台本生成に失敗しました", nil)}
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err == nil {
		t.Fatal("生成失败时应返回错误")
	}

	// 失败不应留下部分记录
	if got := wf.GetScript("s1", 0); got != nil {
		t.Fatal("生成失败后不应留下台本记录")
	}

	// 失败后可以重试
	gen.generateErr = nil
	record, err := wf.SelectChapter(ctx, "s1", 0, nil, 3)
	if err != nil {
		t.Fatalf("重试生成失败: %v", err)
	}
	if record.Status != models.StatusDraft {
		t.Fatalf("重试生成后状态应为draft，实际为 %s", record.Status)
	}
}

func TestSelectChapterRemoteReplacesLocal(t *testing.T) {
	gen := &fakeGenerator{}
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	local, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3)
	if err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	// 远程持有不同版本时应整体替换本地
	remote.pullRecord = &models.ScriptRecord{
		ScriptID:      "remote-id",
		SessionID:     "s1",
		ChapterIndex:  0,
		ScriptContent: "れいむ: 別の端末で承認済みの台本です。",
		Status:        models.StatusApproved,
		Feedback:      []string{"承認します"},
	}

	reconciled, err := wf.SelectChapter(ctx, "s1", 0, nil, 3)
	if err != nil {
		t.Fatalf("远程对账失败: %v", err)
	}
	if reconciled.ScriptID != "remote-id" {
		t.Fatal("远程记录应整体替换本地记录")
	}
	if reconciled.Status != models.StatusApproved {
		t.Fatalf("替换后状态应为approved，实际为 %s", reconciled.Status)
	}
	if reconciled.ScriptContent == local.ScriptContent {
		t.Fatal("本地台本内容应被远程覆盖")
	}
}

func TestSelectChapterInvalidIndex(t *testing.T) {
	wf := newTestWorkflow(&fakeGenerator{}, &fakeRemote{pushOK: true})

	_, err := wf.SelectChapter(context.Background(), "s1", 5, testChapters(), 3)
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("越界章节应返回not_found错误，实际为 %v", err)
	}
}

func TestRejectRequiresFeedback(t *testing.T) {
	gen := &fakeGenerator{}
	wf := newTestWorkflow(gen, &fakeRemote{pushOK: true})
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	_, err := wf.SubmitFeedback(ctx, "s1", 0, "   ", false, 3)
	if !apperrors.IsValidationError(err) {
		t.Fatalf("空反馈的拒绝应返回validation错误，实际为 %v", err)
	}
	if gen.improveCalls != 0 {
		t.Fatal("校验失败时不应触发改善调用")
	}
}

func TestRejectImproveSuccess(t *testing.T) {
	gen := &fakeGenerator{improveText: "れいむ: 改善後の台本です。"}
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	record, err := wf.SubmitFeedback(ctx, "s1", 0, "もっと具体例を入れてください", false, 3)
	if err != nil {
		t.Fatalf("拒绝反馈处理失败: %v", err)
	}

	if record.Status != models.StatusImproved {
		t.Fatalf("改善成功后状态应为improved，实际为 %s", record.Status)
	}
	if record.ImprovedScript != gen.improveText {
		t.Fatal("改善稿应被暂存")
	}
	if record.ScriptContent == gen.improveText {
		t.Fatal("改善稿不应直接覆盖正式台本")
	}
	if len(record.Feedback) != 1 || record.Feedback[0] != "もっと具体例を入れてください" {
		t.Fatalf("反馈应被追加到历史，实际为 %v", record.Feedback)
	}
	if record.PriorStatus != models.StatusDraft {
		t.Fatalf("应记录拒绝前的状态draft，实际为 %s", record.PriorStatus)
	}
	if len(remote.pushed) == 0 {
		t.Fatal("拒绝处理后应推送远程")
	}
}

func TestRejectImproveFailure(t *testing.T) {
	gen := &fakeGenerator{improveErr: apperrors.NewRevisionError("台本の改善に失敗しました", nil)}
	wf := newTestWorkflow(gen, &fakeRemote{pushOK: true})
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	_, err := wf.SubmitFeedback(ctx, "s1", 0, "専門用語を減らしてください", false, 3)
	if !apperrors.IsType(err, apperrors.ErrorTypeRevision) {
		t.Fatalf("改善失败应返回revision错误，实际为 %v", err)
	}

	record := wf.GetScript("s1", 0)
	if record.Status != models.StatusRejected {
		t.Fatalf("改善失败后状态应停在rejected，实际为 %s", record.Status)
	}
	if record.HasImprovement() {
		t.Fatal("改善失败后不应留下改善稿")
	}
	// 反馈本身已被接受，重试时历史仍在
	if len(record.Feedback) != 1 {
		t.Fatalf("改善失败后反馈历史应保留，实际为 %v", record.Feedback)
	}
}

func TestApproveFeedbackHandling(t *testing.T) {
	gen := &fakeGenerator{}
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	// 平凡的确认语不计入反馈历史
	record, err := wf.SubmitFeedback(ctx, "s1", 0, "OK", true, 3)
	if err != nil {
		t.Fatalf("批准处理失败: %v", err)
	}
	if record.Status != models.StatusApproved {
		t.Fatalf("批准后状态应为approved，实际为 %s", record.Status)
	}
	if len(record.Feedback) != 0 {
		t.Fatalf("平凡反馈不应计入历史，实际为 %v", record.Feedback)
	}

	// 实质性反馈在批准时也计入历史
	record, err = wf.SubmitFeedback(ctx, "s1", 0, "テンポが良くて分かりやすいです", true, 3)
	if err != nil {
		t.Fatalf("批准处理失败: %v", err)
	}
	if len(record.Feedback) != 1 {
		t.Fatalf("实质性反馈应计入历史，实际为 %v", record.Feedback)
	}
	if gen.improveCalls != 0 {
		t.Fatal("批准路径不应触发改善调用")
	}
}

func TestApplyImprovementWithoutPending(t *testing.T) {
	wf := newTestWorkflow(&fakeGenerator{}, &fakeRemote{pushOK: true})
	ctx := context.Background()

	before, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3)
	if err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	_, err = wf.ApplyImprovement(ctx, "s1", 0, 3)
	if !apperrors.IsApplyError(err) {
		t.Fatalf("无改善稿时应返回apply错误，实际为 %v", err)
	}

	after := wf.GetScript("s1", 0)
	if after.ScriptContent != before.ScriptContent {
		t.Fatal("apply失败时台本内容不应改变")
	}
}

func TestApplyImprovementAfterDraftReject(t *testing.T) {
	gen := &fakeGenerator{improveText: "れいむ: 改善後の台本です。"}
	wf := newTestWorkflow(gen, &fakeRemote{pushOK: true})
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}
	if _, err := wf.SubmitFeedback(ctx, "s1", 0, "結論を先に述べてください", false, 3); err != nil {
		t.Fatalf("拒绝反馈处理失败: %v", err)
	}

	record, err := wf.ApplyImprovement(ctx, "s1", 0, 3)
	if err != nil {
		t.Fatalf("应用改善稿失败: %v", err)
	}

	if record.ScriptContent != gen.improveText {
		t.Fatal("改善稿应成为正式台本")
	}
	if record.HasImprovement() {
		t.Fatal("应用后改善稿应被清空")
	}
	// 从draft被拒绝的记录应回到draft重新走审核
	if record.Status != models.StatusDraft {
		t.Fatalf("应用后状态应回到draft，实际为 %s", record.Status)
	}
}

func TestApplyImprovementAfterApprovalCompletes(t *testing.T) {
	gen := &fakeGenerator{improveText: "れいむ: 最終版の台本です。"}
	wf := newTestWorkflow(gen, &fakeRemote{pushOK: true})
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	// 先批准，再以追加反馈拒绝，应用后应视为completed
	if _, err := wf.SubmitFeedback(ctx, "s1", 0, "", true, 3); err != nil {
		t.Fatalf("批准处理失败: %v", err)
	}
	record, err := wf.SubmitFeedback(ctx, "s1", 0, "最後の挨拶を追加してください", false, 3)
	if err != nil {
		t.Fatalf("拒绝反馈处理失败: %v", err)
	}
	if record.PriorStatus != models.StatusApproved {
		t.Fatalf("应记录拒绝前的状态approved，实际为 %s", record.PriorStatus)
	}

	applied, err := wf.ApplyImprovement(ctx, "s1", 0, 3)
	if err != nil {
		t.Fatalf("应用改善稿失败: %v", err)
	}
	if applied.Status != models.StatusCompleted {
		t.Fatalf("批准后拒绝再应用的状态应为completed，实际为 %s", applied.Status)
	}
	if applied.PriorStatus != "" {
		t.Fatal("应用后PriorStatus应被清空")
	}
}

func TestFeedbackOrderPreserved(t *testing.T) {
	gen := &fakeGenerator{improveText: "れいむ: 改善版です。"}
	wf := newTestWorkflow(gen, &fakeRemote{pushOK: true})
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	feedbacks := []string{"一つ目の指摘", "二つ目の指摘", "三つ目の指摘"}
	for _, fb := range feedbacks {
		if _, err := wf.SubmitFeedback(ctx, "s1", 0, fb, false, 3); err != nil {
			t.Fatalf("拒绝反馈处理失败: %v", err)
		}
	}

	record := wf.GetScript("s1", 0)
	if len(record.Feedback) != len(feedbacks) {
		t.Fatalf("反馈历史应有 %d 条，实际为 %d 条", len(feedbacks), len(record.Feedback))
	}
	for i, fb := range feedbacks {
		if record.Feedback[i] != fb {
			t.Fatalf("反馈历史顺序应保持提交顺序，位置 %d 应为 %q 实际为 %q", i, fb, record.Feedback[i])
		}
	}
}

func TestAnalyzeFailureKeepsPriorResult(t *testing.T) {
	gen := &fakeGenerator{analyzePassed: true, analyzeText: "はい、基準を満たしています。"}
	wf := newTestWorkflow(gen, &fakeRemote{pushOK: true})
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	passed, analysis, err := wf.AnalyzeScript(ctx, "s1", 0, "", 3)
	if err != nil {
		t.Fatalf("品质分析失败: %v", err)
	}
	if !passed || analysis == "" {
		t.Fatal("分析成功时应返回结果")
	}

	// 第二次分析失败时不应覆盖已有结果
	gen.analyzeErr = apperrors.NewAnalysisError("台本分析に失敗しました", nil)
	if _, _, err := wf.AnalyzeScript(ctx, "s1", 0, "", 3); err == nil {
		t.Fatal("分析失败时应返回错误")
	}

	record := wf.GetScript("s1", 0)
	if record.Passed == nil || !*record.Passed {
		t.Fatal("分析失败不应清除已有的通过判定")
	}
	if record.Analysis != gen.analyzeText {
		t.Fatal("分析失败不应覆盖已有的分析文本")
	}
}

func TestPushFailureDoesNotFailOperation(t *testing.T) {
	gen := &fakeGenerator{}
	remote := &fakeRemote{pushOK: false}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	record, err := wf.SubmitFeedback(ctx, "s1", 0, "", true, 3)
	if err != nil {
		t.Fatalf("推送失败不应影响本地操作: %v", err)
	}
	if record.Status != models.StatusApproved {
		t.Fatalf("推送失败时本地状态仍应更新，实际为 %s", record.Status)
	}
}

func TestSyncChapterReplacesLocal(t *testing.T) {
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(&fakeGenerator{}, remote)
	ctx := context.Background()

	// 远程无记录时返回nil
	if got := wf.SyncChapter(ctx, "s1", 0); got != nil {
		t.Fatal("远程无记录时应返回nil")
	}

	remote.pullRecord = &models.ScriptRecord{
		ScriptID:      "remote-id",
		ChapterIndex:  0,
		ScriptContent: "れいむ: 同期された台本です。",
		Status:        models.StatusApproved,
	}

	record := wf.SyncChapter(ctx, "s1", 0)
	if record == nil || record.ScriptID != "remote-id" {
		t.Fatal("显式同步应返回远程记录")
	}
	if local := wf.GetScript("s1", 0); local == nil || local.ScriptID != "remote-id" {
		t.Fatal("显式同步应替换本地记录")
	}
}

func TestAllScriptsKeepsChapterPositions(t *testing.T) {
	wf := newTestWorkflow(&fakeGenerator{}, &fakeRemote{pushOK: true})
	ctx := context.Background()

	// 只生成第二章
	if _, err := wf.SelectChapter(ctx, "s1", 1, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	scripts := wf.AllScripts("s1")
	if len(scripts) != 2 {
		t.Fatalf("台本列表长度应覆盖最大章节索引，实际为 %d", len(scripts))
	}
	if scripts[0] != nil {
		t.Fatal("未生成的章节位置应为nil")
	}
	if scripts[1] == nil || scripts[1].ChapterIndex != 1 {
		t.Fatal("已生成的台本应位于对应章节索引")
	}
}

func TestSetChaptersResetsScripts(t *testing.T) {
	wf := newTestWorkflow(&fakeGenerator{}, &fakeRemote{pushOK: true})
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	// 新的解析开始时会话台本应全部清空
	wf.SetChapters("s1", testChapters())
	if got := wf.GetScript("s1", 0); got != nil {
		t.Fatal("重新解析后旧台本应被清空")
	}

	scripts := wf.AllScripts("s1")
	if len(scripts) != 0 {
		t.Fatalf("重置后台本列表应为空，实际为 %d 条", len(scripts))
	}
}

func TestSyncChapterPullIdempotent(t *testing.T) {
	gen := &fakeGenerator{}
	remote := &fakeRemote{
		pullRecord: &models.ScriptRecord{
			ScriptID:      "remote-id",
			SessionID:     "s1",
			ChapterIndex:  0,
			ScriptContent: "れいむ: 承認済みの台本です。",
			Status:        models.StatusApproved,
		},
		pushOK: true,
	}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	first := wf.SyncChapter(ctx, "s1", 0)
	second := wf.SyncChapter(ctx, "s1", 0)
	if first == nil || second == nil {
		t.Fatal("远程有记录时同步应返回记录")
	}
	if first.ScriptContent != second.ScriptContent || first.Status != second.Status {
		t.Fatal("重复同步应返回相同的记录")
	}
	if remote.pullCalls != 2 {
		t.Fatalf("应拉取远程两次，实际 %d 次", remote.pullCalls)
	}

	// 纯拉取不应产生任何远程写入
	if len(remote.pushed) != 0 {
		t.Fatalf("同步拉取不应写远程，实际推送 %d 次", len(remote.pushed))
	}
}

func TestReselectPullsWithoutPush(t *testing.T) {
	gen := &fakeGenerator{}
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}
	pushedAfterGenerate := len(remote.pushed)

	// 再次选择只做远程对账，不应追加写入
	for i := 0; i < 3; i++ {
		if _, err := wf.SelectChapter(ctx, "s1", 0, nil, 3); err != nil {
			t.Fatalf("再次选择章节失败: %v", err)
		}
	}
	if len(remote.pushed) != pushedAfterGenerate {
		t.Fatalf("再次选择不应写远程: before=%d after=%d", pushedAfterGenerate, len(remote.pushed))
	}
	if remote.pullCalls != 3 {
		t.Fatalf("再次选择应各拉取一次远程，实际 %d 次", remote.pullCalls)
	}
}

func TestFeedbackAppendOnlyAcrossReselection(t *testing.T) {
	gen := &fakeGenerator{improveText: "れいむ: 改善した台本です。"}
	remote := &fakeRemote{pushOK: true}
	wf := newTestWorkflow(gen, remote)
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	// 拒绝与再选择交错，反馈历史只增不减
	if _, err := wf.SubmitFeedback(ctx, "s1", 0, "一つ目の指摘です", false, 3); err != nil {
		t.Fatalf("第一次拒绝失败: %v", err)
	}
	if _, err := wf.SelectChapter(ctx, "s1", 0, nil, 3); err != nil {
		t.Fatalf("再次选择章节失败: %v", err)
	}
	if _, err := wf.SubmitFeedback(ctx, "s1", 0, "二つ目の指摘です", false, 3); err != nil {
		t.Fatalf("第二次拒绝失败: %v", err)
	}
	if _, err := wf.SelectChapter(ctx, "s1", 0, nil, 3); err != nil {
		t.Fatalf("再次选择章节失败: %v", err)
	}

	record, err := wf.SubmitFeedback(ctx, "s1", 0, "三つ目は承認コメントです", true, 3)
	if err != nil {
		t.Fatalf("批准失败: %v", err)
	}

	want := []string{"一つ目の指摘です", "二つ目の指摘です", "三つ目は承認コメントです"}
	if len(record.Feedback) != len(want) {
		t.Fatalf("反馈历史应有 %d 条，实际 %d 条", len(want), len(record.Feedback))
	}
	for i, fb := range want {
		if record.Feedback[i] != fb {
			t.Fatalf("反馈历史第 %d 条应为 %q，实际为 %q", i, fb, record.Feedback[i])
		}
	}
	if gen.generateCalls != 1 {
		t.Fatalf("交错选择不应重新生成，实际生成 %d 次", gen.generateCalls)
	}
}

func TestAnalyzeFailurePersistsEditedContent(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	store := storage.NewSessionStore(fs)

	gen := &fakeGenerator{}
	remote := &fakeRemote{pushOK: true}
	wf := NewWorkflowService(gen, remote, store)
	ctx := context.Background()

	if _, err := wf.SelectChapter(ctx, "s1", 0, testChapters(), 3); err != nil {
		t.Fatalf("生成台本失败: %v", err)
	}

	edited := "れいむ: 編集後の台本です。"
	gen.analyzeErr = apperrors.NewAnalysisError("台本分析に失敗しました", nil)
	if _, _, err := wf.AnalyzeScript(ctx, "s1", 0, edited, 3); err == nil {
		t.Fatal("分析失败时应返回错误")
	}

	if got := wf.GetScript("s1", 0).ScriptContent; got != edited {
		t.Fatalf("内存中的台本应保留编辑内容，实际为 %q", got)
	}

	// 从同一存储恢复的实例应看到相同内容，内存与快照保持一致
	restored := NewWorkflowService(gen, remote, store)
	record := restored.GetScript("s1", 0)
	if record == nil {
		t.Fatal("快照恢复后应能取得台本记录")
	}
	if record.ScriptContent != edited {
		t.Fatalf("快照中的台本应保留编辑内容，实际为 %q", record.ScriptContent)
	}
}
