// internal/video/frames.go
package video

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FrameExtractor 从视频文件中抽取代表帧。
// 帧解码本身交给ffmpeg完成，这里只负责采样策略与编码。
type FrameExtractor struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFrameExtractor 创建帧抽取器
func NewFrameExtractor() *FrameExtractor {
	return &FrameExtractor{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}
}

// Duration 通过ffprobe获取视频时长（秒）
func (e *FrameExtractor) Duration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration parse: %w", err)
	}
	return duration, nil
}

// ExtractFrames 从视频中均匀抽取最多maxImages帧，返回按时间顺序排列的
// base64编码JPEG序列。
func (e *FrameExtractor) ExtractFrames(ctx context.Context, path string, maxImages int) ([]string, error) {
	if maxImages <= 0 {
		maxImages = 20
	}

	duration, err := e.Duration(ctx, path)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("动画ファイル '%s' の長さを取得できませんでした", path)
	}

	frameDir, err := os.MkdirTemp("", "frames_*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(frameDir)

	// fps = maxImages/duration 即均匀采样
	fps := float64(maxImages) / duration

	cmd := exec.CommandContext(ctx, e.FFmpegPath, "-y",
		"-i", path,
		"-vf", fmt.Sprintf("fps=%f", fps),
		"-frames:v", strconv.Itoa(maxImages),
		"-q:v", "3",
		filepath.Join(frameDir, "frame_%04d.jpg"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction: %w: %s", err, string(out))
	}

	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jpg") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("ビデオからフレームを抽出できませんでした")
	}

	frames := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(frameDir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, base64.StdEncoding.EncodeToString(data))
	}

	return frames, nil
}
