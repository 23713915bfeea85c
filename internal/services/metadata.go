package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const (
	unknownAlbum  = "Unknown Album"
	unknownArtist = "Unknown Artist"
	unknown       = "Unknown"

	extractPrompt = `You are analyzing a vinyl record album cover. Extract the album name and artist name. ` +
		`Return ONLY a JSON object with this exact format: {"album": "album name here", "artist": "artist name here"}. ` +
		`If you cannot clearly read the text, make your best guess based on the image.`
	summarySystemPrompt = `You are a music historian. Respond with strict JSON only.`
	summaryPrompt       = `Give a concise, factual summary for the album %q by %q. Return JSON with keys: ` +
		`"album_info" (1 sentence), "history" (1 sentence), "fun_facts" (array of 2-3 short bullets). ` +
		`If you are unsure about any detail, use "Unknown" instead of guessing.`
)

var (
	albumPattern  = regexp.MustCompile(`(?i)"album":\s*"([^"]+)"`)
	artistPattern = regexp.MustCompile(`(?i)"artist":\s*"([^"]+)"`)
)

// chatCompleter is satisfied by *openai.Client
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RecordInfo is what could be read off an album cover
type RecordInfo struct {
	Album  string `json:"album"`
	Artist string `json:"artist"`
}

// AlbumSummary is a short write-up shown next to a record
type AlbumSummary struct {
	AlbumInfo string   `json:"album_info"`
	History   string   `json:"history"`
	FunFacts  []string `json:"fun_facts"`
}

// MetadataService reads album covers and summarizes albums with OpenAI
type MetadataService struct {
	client chatCompleter
	model  string
}

// NewMetadataService returns nil when apiKey is empty
func NewMetadataService(apiKey, model string) *MetadataService {
	if apiKey == "" {
		return nil
	}
	return newMetadataService(openai.NewClient(apiKey), model)
}

func newMetadataService(client chatCompleter, model string) *MetadataService {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &MetadataService{client: client, model: model}
}

// ExtractRecordInfo reads the album and artist from a cover image, given as
// an https URL or a data URL.
func (s *MetadataService) ExtractRecordInfo(ctx context.Context, image string) (*RecordInfo, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return nil, validationError("image is required")
	}
	if !strings.HasPrefix(image, "data:image/") && !strings.HasPrefix(image, "https://") {
		return nil, validationError("image must be a data URL or an https URL")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: 300,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: extractPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    image,
					Detail: openai.ImageURLDetailLow,
				}},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("extract record info: %w: %w", ErrTransient, err)
	}

	content, err := firstChoice(resp)
	if err != nil {
		return nil, fmt.Errorf("extract record info: %w", err)
	}
	return parseRecordInfo(content), nil
}

// SummarizeAlbum asks for a short factual summary of an album
func (s *MetadataService) SummarizeAlbum(ctx context.Context, album, artist string) (*AlbumSummary, error) {
	album, artist = strings.TrimSpace(album), strings.TrimSpace(artist)
	if album == "" || artist == "" {
		return nil, validationError("album and artist are required")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   220,
		Temperature: 0.4,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(summaryPrompt, album, artist)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summarize album: %w: %w", ErrTransient, err)
	}

	content, err := firstChoice(resp)
	if err != nil {
		return nil, fmt.Errorf("summarize album: %w", err)
	}
	return parseAlbumSummary(content), nil
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: %w", ErrTransient, errors.New("model returned no content"))
	}
	return resp.Choices[0].Message.Content, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseRecordInfo(content string) *RecordInfo {
	var info RecordInfo
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &info); err == nil {
		if info.Album == "" {
			info.Album = unknownAlbum
		}
		if info.Artist == "" {
			info.Artist = unknownArtist
		}
		return &info
	}

	log.Debug().Str("content", content).Msg("Model reply is not JSON, falling back to pattern match")
	info = RecordInfo{Album: unknownAlbum, Artist: unknownArtist}
	if m := albumPattern.FindStringSubmatch(content); m != nil {
		info.Album = m[1]
	}
	if m := artistPattern.FindStringSubmatch(content); m != nil {
		info.Artist = m[1]
	}
	return &info
}

func parseAlbumSummary(content string) *AlbumSummary {
	var summary AlbumSummary
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &summary); err != nil {
		log.Debug().Err(err).Msg("Model reply is not JSON")
		return &AlbumSummary{AlbumInfo: unknown, History: unknown, FunFacts: []string{}}
	}
	if summary.FunFacts == nil {
		summary.FunFacts = []string{}
	}
	return &summary
}
