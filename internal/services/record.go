package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"quincy-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	uploadURLExpiry = 5 * time.Minute
	imageURLExpiry  = time.Hour
)

var allowedImageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".webp": true,
}

type RecordStore interface {
	Create(ctx context.Context, rec *models.Record) error
	GetByID(ctx context.Context, id string) (*models.Record, error)
	MarkUploaded(ctx context.Context, id string) (*models.Record, error)
	GetEntry(ctx context.Context, id string) (*models.WallEntry, error)
	ListByUser(ctx context.Context, eventID, userID string) ([]*models.Record, error)
	ListEntriesByUser(ctx context.Context, eventID, userID string) ([]models.WallEntry, error)
	ListWall(ctx context.Context, eventID, viewerID string) ([]models.WallEntry, error)
}

type ActiveEventGetter interface {
	GetActive(ctx context.Context) (*models.Event, error)
}

// objectPresigner is satisfied by *s3.PresignClient
type objectPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// objectHeader is satisfied by *s3.Client
type objectHeader interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// StorageConfig locates the bucket holding record images
type StorageConfig struct {
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	Endpoint     string
	UsePathStyle bool
}

// RecordService handles record uploads and the Vinyl Wall
type RecordService struct {
	records   RecordStore
	events    ActiveEventGetter
	publisher ProgressPublisher
	presigner objectPresigner
	objects   objectHeader
	bucket    string
}

// NewRecordService creates a record service backed by S3
func NewRecordService(records RecordStore, events ActiveEventGetter, publisher ProgressPublisher, sc StorageConfig) (*RecordService, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(sc.Region)}
	if sc.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.UsePathStyle
	})

	return newRecordService(records, events, publisher, s3.NewPresignClient(client), client, sc.Bucket), nil
}

func newRecordService(records RecordStore, events ActiveEventGetter, publisher ProgressPublisher, presigner objectPresigner, objects objectHeader, bucket string) *RecordService {
	return &RecordService{
		records:   records,
		events:    events,
		publisher: publisher,
		presigner: presigner,
		objects:   objects,
		bucket:    bucket,
	}
}

// UploadRequest represents a request to register a record and get a pre-signed URL
type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
}

// UploadResponse represents the response with pre-signed URL
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	RecordID  string `json:"record_id"`
	ImagePath string `json:"image_path"`
	ExpiresIn int    `json:"expires_in"`
}

// PrepareUpload stores a pending record for the active event and returns a URL
// the client PUTs the cover photo to. The record stays off the wall and does
// not count as an upload until ConfirmUpload.
func (s *RecordService) PrepareUpload(ctx context.Context, userID string, req UploadRequest) (*UploadResponse, error) {
	artist := strings.TrimSpace(req.Artist)
	album := strings.TrimSpace(req.Album)
	if artist == "" || album == "" {
		return nil, validationError("artist and album are required")
	}
	if !strings.HasPrefix(req.ContentType, "image/") {
		return nil, validationError("content type must be an image, got %q", req.ContentType)
	}
	ext := strings.ToLower(path.Ext(req.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	if !allowedImageExts[ext] {
		return nil, validationError("unsupported image type %q", ext)
	}

	event, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, storeError("active event", err)
	}

	recordID := uuid.New().String()
	key := fmt.Sprintf("%s/%s/%s%s", event.ID, userID, recordID, ext)

	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(req.ContentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w: %w", ErrTransient, err)
	}

	rec := &models.Record{
		ID:          recordID,
		EventID:     event.ID,
		UserID:      userID,
		TypedArtist: artist,
		TypedAlbum:  album,
		UploadKey:   key,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, storeError("create record", err)
	}

	return &UploadResponse{
		UploadURL: request.URL,
		RecordID:  recordID,
		ImagePath: key,
		ExpiresIn: int(uploadURLExpiry.Seconds()),
	}, nil
}

// ConfirmUpload checks that the cover photo of a pending record reached the
// bucket and marks the record uploaded. Confirming twice is a no-op.
func (s *RecordService) ConfirmUpload(ctx context.Context, userID, recordID string) (*models.Record, error) {
	if recordID == "" {
		return nil, validationError("record is required")
	}

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, storeError("get record", err)
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	if rec.Uploaded() {
		return rec, nil
	}
	if rec.UploadKey == "" {
		return nil, validationError("record %s has no pending upload", recordID)
	}

	_, err = s.objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(rec.UploadKey),
	})
	if err != nil {
		var missing *types.NotFound
		if errors.As(err, &missing) {
			return nil, validationError("cover photo has not been uploaded yet")
		}
		return nil, fmt.Errorf("failed to check uploaded image: %w: %w", ErrTransient, err)
	}

	rec, err = s.records.MarkUploaded(ctx, recordID)
	if err != nil {
		return nil, storeError("confirm upload", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, userID)
	}
	log.Info().Str("user_id", userID).Str("record_id", recordID).Msg("Record upload confirmed")
	return rec, nil
}

// WallCard is one attendee's record as shown on the Vinyl Wall
type WallCard struct {
	RecordID        string    `json:"record_id"`
	UserID          string    `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	InstagramHandle *string   `json:"instagram_handle,omitempty"`
	AvatarURL       *string   `json:"avatar_url,omitempty"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album"`
	ImageURL        string    `json:"image_url,omitempty"`
	VibeCard        string    `json:"vibe_card"`
	CreatedAt       time.Time `json:"created_at"`
}

// Wall returns the cards viewerID can still vibe with at the active event
func (s *RecordService) Wall(ctx context.Context, viewerID string) ([]WallCard, error) {
	event, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, storeError("active event", err)
	}

	entries, err := s.records.ListWall(ctx, event.ID, viewerID)
	if err != nil {
		return nil, storeError("list wall", err)
	}

	cards := make([]WallCard, 0, len(entries))
	for _, e := range entries {
		cards = append(cards, s.card(ctx, e))
	}
	return cards, nil
}

// RecordDetail returns one record with its owner's card. A pending record is
// visible to its owner only.
func (s *RecordService) RecordDetail(ctx context.Context, viewerID, recordID string) (*WallCard, error) {
	entry, err := s.records.GetEntry(ctx, recordID)
	if err != nil {
		return nil, storeError("get record", err)
	}
	if !entry.Record.Uploaded() && entry.Record.UserID != viewerID {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	card := s.card(ctx, *entry)
	return &card, nil
}

// AttendeeProfile is another attendee of the active event with the records
// they brought
type AttendeeProfile struct {
	UserID          string     `json:"user_id"`
	DisplayName     string     `json:"display_name"`
	InstagramHandle *string    `json:"instagram_handle,omitempty"`
	AvatarURL       *string    `json:"avatar_url,omitempty"`
	MusicIdentity   string     `json:"music_identity,omitempty"`
	TopGenres       []string   `json:"top_genres"`
	EventIntent     string     `json:"event_intent,omitempty"`
	VibeCard        string     `json:"vibe_card"`
	Records         []WallCard `json:"records"`
}

// UserProfile returns userID as seen from the Vinyl Wall. Users without an
// uploaded record at the active event are not found.
func (s *RecordService) UserProfile(ctx context.Context, userID string) (*AttendeeProfile, error) {
	event, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, storeError("active event", err)
	}

	entries, err := s.records.ListEntriesByUser(ctx, event.ID, userID)
	if err != nil {
		return nil, storeError("list user records", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("attendee %s: %w", userID, ErrNotFound)
	}

	profile := entries[0].Profile
	out := &AttendeeProfile{
		UserID:          profile.UserID,
		DisplayName:     profile.DisplayName,
		InstagramHandle: profile.InstagramHandle,
		AvatarURL:       profile.AvatarURL,
		MusicIdentity:   profile.MusicIdentity,
		TopGenres:       profile.TopGenres,
		EventIntent:     profile.EventIntent,
		VibeCard:        VibeCard(&profile),
		Records:         make([]WallCard, 0, len(entries)),
	}
	if out.TopGenres == nil {
		out.TopGenres = []string{}
	}
	for _, e := range entries {
		out.Records = append(out.Records, s.card(ctx, e))
	}
	return out, nil
}

// OwnRecord is one of the caller's records for the active event
type OwnRecord struct {
	RecordID  string    `json:"record_id"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	ImageURL  string    `json:"image_url,omitempty"`
	Uploaded  bool      `json:"uploaded"`
	CreatedAt time.Time `json:"created_at"`
}

// MyRecords lists the caller's records for the active event, pending ones included
func (s *RecordService) MyRecords(ctx context.Context, userID string) ([]OwnRecord, error) {
	event, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, storeError("active event", err)
	}

	records, err := s.records.ListByUser(ctx, event.ID, userID)
	if err != nil {
		return nil, storeError("list records", err)
	}

	out := make([]OwnRecord, 0, len(records))
	for _, rec := range records {
		own := OwnRecord{
			RecordID:  rec.ID,
			Artist:    rec.TypedArtist,
			Album:     rec.TypedAlbum,
			Uploaded:  rec.Uploaded(),
			CreatedAt: rec.CreatedAt,
		}
		if rec.Uploaded() {
			own.ImageURL = s.imageURL(ctx, *rec.ImagePath)
		}
		out = append(out, own)
	}
	return out, nil
}

func (s *RecordService) card(ctx context.Context, e models.WallEntry) WallCard {
	profile := e.Profile
	card := WallCard{
		RecordID:        e.Record.ID,
		UserID:          e.Record.UserID,
		DisplayName:     profile.DisplayName,
		InstagramHandle: profile.InstagramHandle,
		AvatarURL:       profile.AvatarURL,
		Artist:          e.Record.TypedArtist,
		Album:           e.Record.TypedAlbum,
		VibeCard:        VibeCard(&profile),
		CreatedAt:       e.Record.CreatedAt,
	}
	if e.Record.ImagePath != nil {
		card.ImageURL = s.imageURL(ctx, *e.Record.ImagePath)
	}
	return card
}

func (s *RecordService) imageURL(ctx context.Context, key string) string {
	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = imageURLExpiry
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to sign image URL")
		return ""
	}
	return request.URL
}
