package tencent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/regions"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"
)

// 单次批量翻译的上限，接口限制总长度 6000 字符
const (
	maxBatchChars = 2000
	maxBatchLines = 50
)

var logger = log.With().Str("component", "tencent").Logger()

type batchFunc func(ctx context.Context, texts []string) ([]string, error)

// Translator 用腾讯云机器翻译翻译歌词
type Translator struct {
	target string
	batch  batchFunc
}

func NewTranslator(secretID, secretKey, region, target string) (*Translator, error) {
	credential := common.NewCredential(
		secretID, secretKey,
	)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.ReqMethod = "POST"
	cpf.HttpProfile.ReqTimeout = 10 // 秒

	if region == "" {
		region = regions.Guangzhou
	}
	if target == "" {
		target = "zh"
	}
	tmtClient, err := tmt.NewClient(credential, region, cpf)
	if err != nil {
		logger.Error().Err(err).Msg("new tencent client error")
		return nil, err
	}

	t := &Translator{target: target}
	t.batch = func(ctx context.Context, texts []string) ([]string, error) {
		request := tmt.NewTextTranslateBatchRequest()
		request.Source = common.StringPtr("auto")
		request.Target = common.StringPtr(t.target)
		request.ProjectId = common.Int64Ptr(0)
		request.SourceTextList = common.StringPtrs(texts)

		response, err := tmtClient.TextTranslateBatchWithContext(ctx, request)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(response.Response.TargetTextList))
		for i, s := range response.Response.TargetTextList {
			if s != nil {
				out[i] = *s
			}
		}
		return out, nil
	}
	return t, nil
}

// Translate returns one translation per input line, aligned by index. Blank
// lines are not sent and come back empty.
func (t *Translator) Translate(ctx context.Context, lines []string) ([]string, error) {
	out := make([]string, len(lines))

	var (
		chunk   []string
		indices []int
		size    int
	)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		translated, err := t.batch(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to translate %d lines: %w", len(chunk), err)
		}
		if len(translated) != len(chunk) {
			return fmt.Errorf("translated %d lines, expected %d", len(translated), len(chunk))
		}
		for i, s := range translated {
			out[indices[i]] = s
		}
		chunk, indices, size = chunk[:0], indices[:0], 0
		return nil
	}

	for i, line := range lines {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if len(chunk) > 0 && (size+len(text) > maxBatchChars || len(chunk) >= maxBatchLines) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		chunk = append(chunk, text)
		indices = append(indices, i)
		size += len(text)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	logger.Debug().Int("lines", len(lines)).Str("target", t.target).Msg("Translated lyrics")
	return out, nil
}
