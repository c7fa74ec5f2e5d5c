package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/settings"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func sizeType(large bool, small, big llm.ModelType) llm.ModelType {
	if large {
		return big
	}
	return small
}

// ═══════════════════════════════════════════════════════════════════════════
// init / models
// ═══════════════════════════════════════════════════════════════════════════

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Probe the configured credentials against GET /models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.plugin.Init(cmd.Context(), a.rt); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "init complete")
			return err
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported model types and the models they resolve to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []settings.Option
			if a.lookupEnv != nil {
				opts = append(opts, settings.WithLookupEnv(a.lookupEnv))
			}
			r := settings.New(a.rt, opts...)

			resolved := map[llm.ModelType]string{
				llm.ModelTypeTextSmall:        r.First(llm.DefaultSmallModel, llm.SettingSmallModel, llm.SettingSmallModelFallback),
				llm.ModelTypeTextLarge:        r.First(llm.DefaultLargeModel, llm.SettingLargeModel, llm.SettingLargeModelFallback),
				llm.ModelTypeObjectSmall:      r.First(llm.DefaultSmallModel, llm.SettingSmallModel, llm.SettingSmallModelFallback),
				llm.ModelTypeObjectLarge:      r.First(llm.DefaultLargeModel, llm.SettingLargeModel, llm.SettingLargeModelFallback),
				llm.ModelTypeTextEmbedding:    r.Get(llm.SettingEmbeddingModel, llm.DefaultEmbeddingModel),
				llm.ModelTypeImage:            r.Get(llm.SettingImageModel, llm.DefaultImageModel),
				llm.ModelTypeImageDescription: r.Get(llm.SettingImageDescriptionModel, llm.DefaultImageDescriptionModel),
				llm.ModelTypeTranscription:    r.Get(llm.SettingTranscriptionModel, llm.DefaultTranscriptionModel),
				llm.ModelTypeTextToSpeech:     r.Get(llm.SettingTTSModel, llm.DefaultTTSModel),
			}

			types := make([]string, 0, len(a.plugin.Models()))
			for t := range a.plugin.Models() {
				types = append(types, t.String())
			}
			sort.Strings(types)

			w := cmd.OutOrStdout()
			for _, t := range types {
				model := resolved[llm.ModelType(t)]
				if model == "" {
					model = "(local tokenizer)"
				}
				if _, err := fmt.Fprintf(w, "%-24s %s\n", t, model); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 文本
// ═══════════════════════════════════════════════════════════════════════════

func newGenerateCmd(a *app) *cobra.Command {
	var (
		large       bool
		stream      bool
		maxTokens   int
		temperature float64
		stops       []string
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate text (TEXT_SMALL, or TEXT_LARGE with --large)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := sizeType(large, llm.ModelTypeTextSmall, llm.ModelTypeTextLarge)
			params := &llm.TextParams{
				Prompt:        args[0],
				StopSequences: stops,
			}
			if cmd.Flags().Changed("max-tokens") {
				params.MaxTokens = &maxTokens
			}
			if cmd.Flags().Changed("temperature") {
				params.Temperature = &temperature
			}

			w := cmd.OutOrStdout()
			if !stream {
				text, err := a.plugin.GenerateText(cmd.Context(), a.rt, t, params)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, text)
				return err
			}

			events, err := a.plugin.StreamText(cmd.Context(), a.rt, t, params)
			if err != nil {
				return err
			}
			var streamErr error
			for ev := range events {
				switch ev.Type {
				case llm.EventTypeText:
					fmt.Fprint(w, ev.TextDelta)
				case llm.EventTypeError:
					streamErr = ev.Error
				}
			}
			fmt.Fprintln(w)
			return streamErr
		},
	}

	cmd.Flags().BoolVar(&large, "large", false, "use the large model")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", llm.DefaultMaxTokens, "maximum output tokens")
	cmd.Flags().Float64Var(&temperature, "temperature", llm.DefaultTemperature, "sampling temperature")
	cmd.Flags().StringSliceVar(&stops, "stop", nil, "stop sequences")
	return cmd
}

func newObjectCmd(a *app) *cobra.Command {
	var (
		large      bool
		schemaPath string
	)

	cmd := &cobra.Command{
		Use:   "object <prompt>",
		Short: "Generate a JSON object (OBJECT_SMALL, or OBJECT_LARGE with --large)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := &llm.ObjectParams{Prompt: args[0]}
			if schemaPath != "" {
				data, err := os.ReadFile(schemaPath)
				if err != nil {
					return fmt.Errorf("read schema: %w", err)
				}
				if err := json.Unmarshal(data, &params.Schema); err != nil {
					return fmt.Errorf("parse schema: %w", err)
				}
			}

			t := sizeType(large, llm.ModelTypeObjectSmall, llm.ModelTypeObjectLarge)
			obj, err := a.plugin.GenerateObject(cmd.Context(), a.rt, t, params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), obj)
		},
	}

	cmd.Flags().BoolVar(&large, "large", false, "use the large model")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON Schema file the object should follow")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════
// 向量与分词
// ═══════════════════════════════════════════════════════════════════════════

func newEmbedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "embed [text]",
		Short: "Compute an embedding vector; without text, returns the probe vector",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params *llm.EmbeddingParams
			if len(args) == 1 {
				params = &llm.EmbeddingParams{Text: args[0]}
			}
			vec, err := a.plugin.Embed(cmd.Context(), a.rt, params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), vec)
		},
	}
}

func newTokenizeCmd(a *app) *cobra.Command {
	var large bool

	cmd := &cobra.Command{
		Use:   "tokenize <text>",
		Short: "Encode text into token ids with the model's tokenizer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := a.plugin.Tokenize(cmd.Context(), a.rt, &llm.TokenizeParams{
				Prompt:    args[0],
				ModelType: sizeType(large, llm.ModelTypeTextSmall, llm.ModelTypeTextLarge),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tokens)
		},
	}
	cmd.Flags().BoolVar(&large, "large", true, "use the large model's tokenizer")
	return cmd
}

func newDetokenizeCmd(a *app) *cobra.Command {
	var large bool

	cmd := &cobra.Command{
		Use:   "detokenize <token>...",
		Short: "Decode token ids back into text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := parseTokens(args)
			if err != nil {
				return err
			}
			text, err := a.plugin.Detokenize(cmd.Context(), a.rt, &llm.DetokenizeParams{
				Tokens:    tokens,
				ModelType: sizeType(large, llm.ModelTypeTextSmall, llm.ModelTypeTextLarge),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().BoolVar(&large, "large", true, "use the large model's tokenizer")
	return cmd
}

// parseTokens 接受空格或逗号分隔的 token id，也接受 JSON 数组
func parseTokens(args []string) ([]int, error) {
	joined := strings.TrimSpace(strings.Join(args, " "))
	if strings.HasPrefix(joined, "[") {
		var tokens []int
		if err := json.Unmarshal([]byte(joined), &tokens); err != nil {
			return nil, fmt.Errorf("parse tokens: %w", err)
		}
		return tokens, nil
	}

	fields := strings.FieldsFunc(joined, func(r rune) bool { return r == ',' || r == ' ' })
	tokens := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid token %q: %w", f, err)
		}
		tokens = append(tokens, n)
	}
	return tokens, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 图像
// ═══════════════════════════════════════════════════════════════════════════

func newImageCmd(a *app) *cobra.Command {
	var (
		n    int
		size string
	)

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate images and print their URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := a.plugin.GenerateImage(cmd.Context(), a.rt, &llm.ImageParams{
				Prompt: args[0],
				N:      n,
				Size:   size,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), images)
		},
	}
	cmd.Flags().IntVar(&n, "n", llm.DefaultImageCount, "number of images")
	cmd.Flags().StringVar(&size, "size", llm.DefaultImageSize, "image size")
	return cmd
}

func newDescribeCmd(a *app) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "describe <image-url>",
		Short: "Describe an image with the vision model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := a.plugin.DescribeImage(cmd.Context(), a.rt, &llm.ImageDescriptionParams{
				ImageURL: args[0],
				Prompt:   prompt,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), desc)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "custom question about the image")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════
// 音频
// ═══════════════════════════════════════════════════════════════════════════

func newTranscribeCmd(a *app) *cobra.Command {
	var (
		model    string
		language string
		prompt   string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}
			text, err := a.plugin.Transcribe(cmd.Context(), a.rt, &llm.TranscriptionParams{
				Audio:    data,
				Filename: filepath.Base(args[0]),
				MimeType: mime.TypeByExtension(filepath.Ext(args[0])),
				Model:    model,
				Language: language,
				Prompt:   prompt,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "override the transcription model")
	cmd.Flags().StringVar(&language, "language", "", "ISO-639-1 language hint")
	cmd.Flags().StringVar(&prompt, "prompt", "", "context to guide the transcription")
	return cmd
}

func newSpeakCmd(a *app) *cobra.Command {
	var (
		out          string
		voice        string
		format       string
		instructions string
	)

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize speech and write the audio to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := a.plugin.Speak(cmd.Context(), a.rt, &llm.SpeechParams{
				Text:         args[0],
				Voice:        voice,
				Format:       format,
				Instructions: instructions,
			})
			if err != nil {
				return err
			}
			defer func() { _ = audio.Body.Close() }()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			n, err := io.Copy(f, audio.Body)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes (%s) to %s\n", n, audio.ContentType, out)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "speech.mp3", "output file")
	cmd.Flags().StringVar(&voice, "voice", "", "voice name")
	cmd.Flags().StringVar(&format, "format", "", "audio format: mp3, wav, flac, aac, opus, pcm")
	cmd.Flags().StringVar(&instructions, "instructions", "", "speaking style instructions")
	return cmd
}
