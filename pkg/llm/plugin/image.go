package plugin

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	openaiproto "github.com/lwmacct/251217-go-plugin-openai/pkg/llm/protocol/openai"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
)

const (
	defaultDescribePrompt = "Please analyze this image and provide a title and detailed description."
	defaultImageTitle     = "Image Analysis"
)

// titlePattern 匹配回答中的 "title: ..." 行
var titlePattern = regexp.MustCompile(`(?i)title[:\s]+(.+?)(?:\n|$)`)

// ═══════════════════════════════════════════════════════════════════════════
// 图像生成
// ═══════════════════════════════════════════════════════════════════════════

// GenerateImage 图像生成（IMAGE），通过 openai-go 调用 /images/generations
//
// 上游只返回 base64 时，URL 为 data: URL。
func (p *Plugin) GenerateImage(ctx context.Context, rt runtime.Runtime, params *llm.ImageParams) (images []llm.ImageResult, err error) {
	defer p.observe(llm.ModelTypeImage, time.Now(), &err)

	if params == nil || strings.TrimSpace(params.Prompt) == "" {
		return nil, llm.NewConfigError("image prompt is required", nil)
	}

	r := p.resolver(rt)
	client, err := p.sdkClient(r)
	if err != nil {
		return nil, err
	}

	model := r.Get(llm.SettingImageModel, llm.DefaultImageModel)
	n := params.N
	if n <= 0 {
		n = llm.DefaultImageCount
	}
	size := params.Size
	if size == "" {
		size = llm.DefaultImageSize
	}

	p.logger.Debug("generating image", "model", model, "n", n, "size", size)

	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: params.Prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(int64(n)),
		Size:   openai.ImageGenerateParamsSize(size),
	})
	if err != nil {
		err = sdkError(err)
		p.logger.Error("image generation failed", "model", model, "error", err)
		return nil, err
	}

	images = make([]llm.ImageResult, 0, len(resp.Data))
	for _, img := range resp.Data {
		url := img.URL
		if url == "" && img.B64JSON != "" {
			url = "data:image/png;base64," + img.B64JSON
		}
		images = append(images, llm.ImageResult{URL: url, RevisedPrompt: img.RevisedPrompt})
	}
	return images, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 图像描述
// ═══════════════════════════════════════════════════════════════════════════

// DescribeImage 图像描述（IMAGE_DESCRIPTION），使用视觉模型的 chat 请求
//
// 默认提示下从回答中解析标题（"title: ..." 行，缺省为 "Image Analysis"），
// 其余内容作为描述。自定义提示时 Raw 保存完整回答。
func (p *Plugin) DescribeImage(ctx context.Context, rt runtime.Runtime, params *llm.ImageDescriptionParams) (desc *llm.ImageDescription, err error) {
	const t = llm.ModelTypeImageDescription
	defer p.observe(t, time.Now(), &err)

	if params == nil || strings.TrimSpace(params.ImageURL) == "" {
		return nil, llm.NewConfigError("image url is required", nil)
	}

	r := p.resolver(rt)
	client, err := p.chatClient(r)
	if err != nil {
		return nil, err
	}

	model := r.Get(llm.SettingImageDescriptionModel, llm.DefaultImageDescriptionModel)
	maxTokens, err := r.Int(llm.SettingImageDescriptionMaxToken, llm.DefaultImageDescriptionMaxToken)
	if err != nil {
		return nil, err
	}

	prompt := params.Prompt
	custom := prompt != ""
	if !custom {
		prompt = defaultDescribePrompt
	}

	req := p.adapter.BuildRequest(model,
		p.adapter.BuildVisionMessages(prompt, params.ImageURL),
		&openaiproto.ChatOptions{MaxTokens: maxTokens},
	)

	p.logger.Debug("describing image", "model", model)

	var resp map[string]any
	if err := client.PostJSON(ctx, chatCompletionsPath, req, &resp); err != nil {
		p.logger.Error("image description failed", "model", model, "error", err)
		return nil, err
	}

	content, _, err := p.adapter.ConvertFromAPI(resp)
	if err != nil {
		return nil, err
	}

	p.emitUsage(ctx, rt, t, model, prompt, p.adapter.ConvertUsage(resp))

	desc = parseImageDescription(content)
	if custom {
		desc.Raw = content
	}
	return desc, nil
}

func parseImageDescription(content string) *llm.ImageDescription {
	title := defaultImageTitle
	description := content
	if loc := titlePattern.FindStringSubmatchIndex(content); loc != nil {
		if s := strings.TrimSpace(content[loc[2]:loc[3]]); s != "" {
			title = s
		}
		description = content[:loc[0]] + content[loc[1]:]
	}
	return &llm.ImageDescription{Title: title, Description: strings.TrimSpace(description)}
}

// sdkError 将 openai-go 的错误转换为 llm 错误类型
func sdkError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		text := apiErr.Message
		if text == "" {
			text = apiErr.Error()
		}
		return llm.NewAPIError(apiErr.StatusCode, text).
			WithProvider(llm.ProviderName).
			WithErrorCode(apiErr.Code)
	}
	return llm.NewHTTPError("request failed", err)
}
