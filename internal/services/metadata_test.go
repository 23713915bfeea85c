package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
)

type fakeCompleter struct {
	reply string
	err   error
	last  openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

func TestParseRecordInfo(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    RecordInfo
	}{
		{
			name:    "plain json",
			content: `{"album": "Blue Train", "artist": "John Coltrane"}`,
			want:    RecordInfo{Album: "Blue Train", Artist: "John Coltrane"},
		},
		{
			name:    "fenced json",
			content: "```json\n{\"album\": \"Kind of Blue\", \"artist\": \"Miles Davis\"}\n```",
			want:    RecordInfo{Album: "Kind of Blue", Artist: "Miles Davis"},
		},
		{
			name:    "bare fence",
			content: "```\n{\"album\": \"Voodoo\", \"artist\": \"D'Angelo\"}\n```",
			want:    RecordInfo{Album: "Voodoo", Artist: "D'Angelo"},
		},
		{
			name:    "prose with fields",
			content: `I think this is "Album": "Discovery", and "artist": "Daft Punk" but I'm not sure`,
			want:    RecordInfo{Album: "Discovery", Artist: "Daft Punk"},
		},
		{
			name:    "unreadable",
			content: "I cannot read this cover.",
			want:    RecordInfo{Album: "Unknown Album", Artist: "Unknown Artist"},
		},
		{
			name:    "json missing artist",
			content: `{"album": "Untitled"}`,
			want:    RecordInfo{Album: "Untitled", Artist: "Unknown Artist"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseRecordInfo(tc.content); *got != tc.want {
				t.Fatalf("parseRecordInfo() = %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func TestExtractRecordInfo(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{reply: `{"album": "Maggot Brain", "artist": "Funkadelic"}`}
	s := newMetadataService(completer, "")

	info, err := s.ExtractRecordInfo(ctx, "data:image/jpeg;base64,AAAA")
	if err != nil {
		t.Fatalf("ExtractRecordInfo() error = %v", err)
	}
	if info.Album != "Maggot Brain" || info.Artist != "Funkadelic" {
		t.Fatalf("info = %+v", info)
	}
	if completer.last.Model != openai.GPT4oMini || completer.last.MaxTokens != 300 {
		t.Fatalf("request model/max tokens = %s/%d", completer.last.Model, completer.last.MaxTokens)
	}
	parts := completer.last.Messages[0].MultiContent
	if len(parts) != 2 || parts[1].ImageURL == nil || parts[1].ImageURL.Detail != openai.ImageURLDetailLow {
		t.Fatalf("image part not sent with low detail: %+v", parts)
	}

	if _, err := s.ExtractRecordInfo(ctx, "ftp://cover"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad image: err = %v, want ErrValidation", err)
	}

	completer.err = errors.New("rate limited")
	if _, err := s.ExtractRecordInfo(ctx, "https://img.example/cover.jpg"); !errors.Is(err, ErrTransient) {
		t.Fatalf("api failure: err = %v, want ErrTransient", err)
	}
}

func TestSummarizeAlbum(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{reply: "```json\n{\"album_info\": \"A 1971 soul album.\", \"history\": \"Recorded in Detroit.\", \"fun_facts\": [\"a\", \"b\"]}\n```"}
	s := newMetadataService(completer, "gpt-4o-mini")

	got, err := s.SummarizeAlbum(ctx, "What's Going On", "Marvin Gaye")
	if err != nil {
		t.Fatalf("SummarizeAlbum() error = %v", err)
	}
	if got.History != "Recorded in Detroit." || len(got.FunFacts) != 2 {
		t.Fatalf("summary = %+v", got)
	}

	completer.reply = "not json"
	got, err = s.SummarizeAlbum(ctx, "What's Going On", "Marvin Gaye")
	if err != nil {
		t.Fatalf("SummarizeAlbum() error = %v", err)
	}
	if got.AlbumInfo != "Unknown" || got.FunFacts == nil {
		t.Fatalf("fallback summary = %+v", got)
	}

	if _, err := s.SummarizeAlbum(ctx, "", "Marvin Gaye"); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing album: err = %v, want ErrValidation", err)
	}
}

func TestNewMetadataService_Disabled(t *testing.T) {
	if NewMetadataService("", "") != nil {
		t.Fatalf("NewMetadataService without key should be nil")
	}
}
