package ai

import "context"

// AiInterface 文本补全后端，用于整理播放器上报的曲目信息
type AiInterface interface {
	Name() string
	HandleText(ctx context.Context, msg string) (string, error)
}
