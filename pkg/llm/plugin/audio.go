package plugin

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
)

const (
	speechPath = "/audio/speech"

	defaultAudioFilename = "recording.mp3"
	defaultAudioMimeType = "audio/mpeg"
)

// speechContentTypes 语音格式到 Accept 头的映射
var speechContentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"opus": "audio/ogg",
	"pcm":  "audio/pcm",
}

// SpeechContentType 返回格式对应的 MIME 类型，未知格式按 mp3 处理
func SpeechContentType(format string) string {
	if ct, ok := speechContentTypes[strings.ToLower(format)]; ok {
		return ct
	}
	return speechContentTypes["mp3"]
}

// ═══════════════════════════════════════════════════════════════════════════
// 语音转写
// ═══════════════════════════════════════════════════════════════════════════

// Transcribe 语音转文字（TRANSCRIPTION），通过 openai-go 以 multipart 上传
func (p *Plugin) Transcribe(ctx context.Context, rt runtime.Runtime, params *llm.TranscriptionParams) (text string, err error) {
	defer p.observe(llm.ModelTypeTranscription, time.Now(), &err)

	if params == nil || len(params.Audio) == 0 {
		return "", llm.NewConfigError("audio data is required", nil)
	}

	r := p.resolver(rt)
	client, err := p.sdkClient(r)
	if err != nil {
		return "", err
	}

	model := params.Model
	if model == "" {
		model = r.Get(llm.SettingTranscriptionModel, llm.DefaultTranscriptionModel)
	}
	filename := params.Filename
	if filename == "" {
		filename = defaultAudioFilename
	}
	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = defaultAudioMimeType
	}

	req := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(params.Audio), filename, mimeType),
		Model: openai.AudioModel(model),
	}
	if params.Language != "" {
		req.Language = openai.String(params.Language)
	}
	if params.Prompt != "" {
		req.Prompt = openai.String(params.Prompt)
	}
	if params.Temperature != nil {
		req.Temperature = openai.Float(*params.Temperature)
	}

	p.logger.Debug("transcribing audio", "model", model, "bytes", len(params.Audio), "mime_type", mimeType)

	resp, err := client.Audio.Transcriptions.New(ctx, req)
	if err != nil {
		err = sdkError(err)
		p.logger.Error("transcription failed", "model", model, "error", err)
		return "", err
	}
	return resp.Text, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 语音合成
// ═══════════════════════════════════════════════════════════════════════════

// Speak 文字转语音（TEXT_TO_SPEECH）
//
// 返回的 Audio.Body 由调用方关闭。
func (p *Plugin) Speak(ctx context.Context, rt runtime.Runtime, params *llm.SpeechParams) (audio *llm.Audio, err error) {
	defer p.observe(llm.ModelTypeTextToSpeech, time.Now(), &err)

	if params == nil || strings.TrimSpace(params.Text) == "" {
		return nil, llm.NewConfigError("speech text is required", nil)
	}

	r := p.resolver(rt)
	client, err := p.chatClient(r)
	if err != nil {
		return nil, err
	}

	model := params.Model
	if model == "" {
		model = r.Get(llm.SettingTTSModel, llm.DefaultTTSModel)
	}
	voice := params.Voice
	if voice == "" {
		voice = r.Get(llm.SettingTTSVoice, llm.DefaultTTSVoice)
	}
	instructions := params.Instructions
	if instructions == "" {
		instructions = r.Get(llm.SettingTTSInstructions, "")
	}

	body := map[string]any{
		"model": model,
		"voice": voice,
		"input": params.Text,
	}
	if instructions != "" {
		body["instructions"] = instructions
	}
	if params.Format != "" {
		body["response_format"] = strings.ToLower(params.Format)
	}

	p.logger.Debug("synthesizing speech", "model", model, "voice", voice, "format", params.Format)

	rc, contentType, err := client.PostRaw(ctx, speechPath, body, SpeechContentType(params.Format))
	if err != nil {
		p.logger.Error("speech synthesis failed", "model", model, "error", err)
		return nil, err
	}
	if contentType == "" {
		contentType = SpeechContentType(params.Format)
	}
	return &llm.Audio{Body: rc, ContentType: contentType}, nil
}
