package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quincy-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakePresigner struct {
	puts    []string
	expires []time.Duration
	failGet bool
}

func (f *fakePresigner) PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	key := aws.ToString(in.Key)
	f.puts = append(f.puts, key)
	f.expires = append(f.expires, opts.Expires)
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + key + "?put", Method: "PUT"}, nil
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.failGet {
		return nil, errors.New("signing failed")
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + aws.ToString(in.Key) + "?get", Method: "GET"}, nil
}

// fakeBucket answers HeadObject for the keys put into it
type fakeBucket struct {
	keys  map[string]bool
	err   error
	heads int
}

func (b *fakeBucket) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b.heads++
	if b.err != nil {
		return nil, b.err
	}
	if !b.keys[aws.ToString(in.Key)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

type memRecords struct {
	created  []*models.Record
	wall     []models.WallEntry
	profiles map[string]models.Profile
}

func (m *memRecords) Create(ctx context.Context, rec *models.Record) error {
	m.created = append(m.created, rec)
	return nil
}

func (m *memRecords) GetByID(ctx context.Context, id string) (*models.Record, error) {
	for _, rec := range m.created {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRecords) MarkUploaded(ctx context.Context, id string) (*models.Record, error) {
	for _, rec := range m.created {
		if rec.ID == id {
			if rec.ImagePath == nil {
				key := rec.UploadKey
				rec.ImagePath = &key
			}
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRecords) GetEntry(ctx context.Context, id string) (*models.WallEntry, error) {
	rec, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.WallEntry{Record: *rec, Profile: m.profiles[rec.UserID]}, nil
}

func (m *memRecords) ListByUser(ctx context.Context, eventID, userID string) ([]*models.Record, error) {
	var out []*models.Record
	for _, rec := range m.created {
		if rec.EventID == eventID && rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRecords) ListEntriesByUser(ctx context.Context, eventID, userID string) ([]models.WallEntry, error) {
	recs, _ := m.ListByUser(ctx, eventID, userID)
	var out []models.WallEntry
	for _, rec := range recs {
		if rec.Uploaded() {
			out = append(out, models.WallEntry{Record: *rec, Profile: m.profiles[userID]})
		}
	}
	return out, nil
}

func (m *memRecords) ListWall(ctx context.Context, eventID, viewerID string) ([]models.WallEntry, error) {
	return m.wall, nil
}

type fixedEvent struct {
	event *models.Event
}

func (f fixedEvent) GetActive(ctx context.Context) (*models.Event, error) {
	if f.event == nil {
		return nil, ErrNotFound
	}
	return f.event, nil
}

func TestPrepareUpload(t *testing.T) {
	ctx := context.Background()
	records := &memRecords{}
	presigner := &fakePresigner{}
	pub := &recordingPublisher{}
	s := newRecordService(records, fixedEvent{&models.Event{ID: "e1"}}, pub, presigner, &fakeBucket{}, "vinyl")

	resp, err := s.PrepareUpload(ctx, "u1", UploadRequest{
		Filename:    "cover.PNG",
		ContentType: "image/png",
		Artist:      " Khruangbin ",
		Album:       "Con Todo El Mundo",
	})
	if err != nil {
		t.Fatalf("PrepareUpload() error = %v", err)
	}

	if !strings.HasPrefix(resp.ImagePath, "e1/u1/") || !strings.HasSuffix(resp.ImagePath, ".png") {
		t.Fatalf("image path = %q, want e1/u1/<record>.png", resp.ImagePath)
	}
	if resp.ImagePath != "e1/u1/"+resp.RecordID+".png" {
		t.Fatalf("image path %q does not embed record id %q", resp.ImagePath, resp.RecordID)
	}
	if resp.ExpiresIn != 300 || presigner.expires[0] != 5*time.Minute {
		t.Fatalf("upload URL expiry = %d / %s", resp.ExpiresIn, presigner.expires[0])
	}
	if len(records.created) != 1 || records.created[0].TypedArtist != "Khruangbin" {
		t.Fatalf("records = %+v", records.created)
	}
	if rec := records.created[0]; rec.Uploaded() || rec.UploadKey != resp.ImagePath {
		t.Fatalf("new record = %+v, want pending with upload key %q", rec, resp.ImagePath)
	}
	if len(pub.users) != 0 {
		t.Fatalf("progress published before the photo was uploaded")
	}
}

func TestConfirmUpload(t *testing.T) {
	ctx := context.Background()
	records := &memRecords{}
	bucket := &fakeBucket{keys: map[string]bool{}}
	pub := &recordingPublisher{}
	s := newRecordService(records, fixedEvent{&models.Event{ID: "e1"}}, pub, &fakePresigner{}, bucket, "vinyl")

	resp, err := s.PrepareUpload(ctx, "u1", UploadRequest{Filename: "a.jpg", ContentType: "image/jpeg", Artist: "Sade", Album: "Stronger Than Pride"})
	if err != nil {
		t.Fatalf("PrepareUpload() error = %v", err)
	}

	if _, err := s.ConfirmUpload(ctx, "u1", resp.RecordID); !errors.Is(err, ErrValidation) {
		t.Fatalf("confirm before PUT: err = %v, want ErrValidation", err)
	}
	if records.created[0].Uploaded() || len(pub.users) != 0 {
		t.Fatalf("missing object still marked the record uploaded")
	}

	if _, err := s.ConfirmUpload(ctx, "u2", resp.RecordID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("confirm by another user: err = %v, want ErrNotFound", err)
	}

	bucket.keys[resp.ImagePath] = true
	rec, err := s.ConfirmUpload(ctx, "u1", resp.RecordID)
	if err != nil {
		t.Fatalf("ConfirmUpload() error = %v", err)
	}
	if !rec.Uploaded() || *rec.ImagePath != resp.ImagePath {
		t.Fatalf("confirmed record = %+v", rec)
	}
	if len(pub.users) != 1 || pub.users[0] != "u1" {
		t.Fatalf("published = %v, want [u1]", pub.users)
	}

	heads := bucket.heads
	if _, err := s.ConfirmUpload(ctx, "u1", resp.RecordID); err != nil {
		t.Fatalf("second ConfirmUpload() error = %v", err)
	}
	if bucket.heads != heads || len(pub.users) != 1 {
		t.Fatalf("repeat confirm touched storage or republished")
	}
}

func TestConfirmUpload_StorageDown(t *testing.T) {
	ctx := context.Background()
	records := &memRecords{created: []*models.Record{{ID: "r1", EventID: "e1", UserID: "u1", UploadKey: "e1/u1/r1.jpg"}}}
	bucket := &fakeBucket{err: errors.New("dial tcp: i/o timeout")}
	s := newRecordService(records, fixedEvent{&models.Event{ID: "e1"}}, nil, &fakePresigner{}, bucket, "vinyl")

	if _, err := s.ConfirmUpload(ctx, "u1", "r1"); !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if _, err := s.ConfirmUpload(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown record: err = %v, want ErrNotFound", err)
	}
}

func TestRecordReads(t *testing.T) {
	ctx := context.Background()
	uploaded := "e1/u2/r1.jpg"
	records := &memRecords{
		created: []*models.Record{
			{ID: "r1", EventID: "e1", UserID: "u2", TypedArtist: "Sade", TypedAlbum: "Diamond Life", ImagePath: &uploaded, UploadKey: uploaded},
			{ID: "r2", EventID: "e1", UserID: "u2", TypedArtist: "Sade", TypedAlbum: "Promise", UploadKey: "e1/u2/r2.jpg"},
			{ID: "r3", EventID: "e1", UserID: "u3", UploadKey: "e1/u3/r3.jpg"},
		},
		profiles: map[string]models.Profile{
			"u2": {UserID: "u2", DisplayName: "Ari", MusicIdentity: "dj"},
		},
	}
	s := newRecordService(records, fixedEvent{&models.Event{ID: "e1"}}, nil, &fakePresigner{}, &fakeBucket{}, "vinyl")

	card, err := s.RecordDetail(ctx, "u1", "r1")
	if err != nil {
		t.Fatalf("RecordDetail() error = %v", err)
	}
	if card.DisplayName != "Ari" || card.ImageURL != "https://bucket.example/e1/u2/r1.jpg?get" {
		t.Fatalf("card = %+v", card)
	}
	if _, err := s.RecordDetail(ctx, "u1", "r2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pending record seen by another user: err = %v", err)
	}
	if _, err := s.RecordDetail(ctx, "u2", "r2"); err != nil {
		t.Fatalf("owner reading pending record: %v", err)
	}

	profile, err := s.UserProfile(ctx, "u2")
	if err != nil {
		t.Fatalf("UserProfile() error = %v", err)
	}
	if len(profile.Records) != 1 || profile.Records[0].RecordID != "r1" {
		t.Fatalf("profile records = %+v, want only the uploaded one", profile.Records)
	}
	if profile.TopGenres == nil {
		t.Fatalf("top genres encoded as null")
	}
	if _, err := s.UserProfile(ctx, "u3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("user with only pending records: err = %v, want ErrNotFound", err)
	}

	mine, err := s.MyRecords(ctx, "u2")
	if err != nil {
		t.Fatalf("MyRecords() error = %v", err)
	}
	if len(mine) != 2 || !mine[0].Uploaded || mine[1].Uploaded || mine[1].ImageURL != "" {
		t.Fatalf("my records = %+v", mine)
	}
}

func TestPrepareUpload_Rejects(t *testing.T) {
	ctx := context.Background()
	s := newRecordService(&memRecords{}, fixedEvent{&models.Event{ID: "e1"}}, nil, &fakePresigner{}, &fakeBucket{}, "vinyl")

	cases := map[string]UploadRequest{
		"missing album": {Filename: "a.jpg", ContentType: "image/jpeg", Artist: "x"},
		"not an image":  {Filename: "a.pdf", ContentType: "application/pdf", Artist: "x", Album: "y"},
		"bad extension": {Filename: "a.exe", ContentType: "image/jpeg", Artist: "x", Album: "y"},
	}
	for name, req := range cases {
		if _, err := s.PrepareUpload(ctx, "u1", req); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}

	noEvent := newRecordService(&memRecords{}, fixedEvent{}, nil, &fakePresigner{}, &fakeBucket{}, "vinyl")
	_, err := noEvent.PrepareUpload(ctx, "u1", UploadRequest{Filename: "a.jpg", ContentType: "image/jpeg", Artist: "x", Album: "y"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("no active event: err = %v, want ErrNotFound", err)
	}
}

func TestWall(t *testing.T) {
	key := "e1/u2/r2.jpg"
	records := &memRecords{wall: []models.WallEntry{
		{
			Record: models.Record{ID: "r2", UserID: "u2", TypedArtist: "Sade", TypedAlbum: "Diamond Life", ImagePath: &key},
			Profile: models.Profile{
				UserID: "u2", DisplayName: "Ari", MusicIdentity: "vinyl_collector",
				TopGenres: []string{"soul_funk"}, EventIntent: "chilling",
			},
		},
		{
			Record:  models.Record{ID: "r3", UserID: "u3", TypedArtist: "Fela Kuti", TypedAlbum: "Zombie"},
			Profile: models.Profile{UserID: "u3", DisplayName: "Bo"},
		},
	}}
	presigner := &fakePresigner{}
	s := newRecordService(records, fixedEvent{&models.Event{ID: "e1"}}, nil, presigner, &fakeBucket{}, "vinyl")

	cards, err := s.Wall(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Wall() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	if cards[0].ImageURL != "https://bucket.example/e1/u2/r2.jpg?get" {
		t.Fatalf("image url = %q", cards[0].ImageURL)
	}
	if cards[0].VibeCard != "💿 Vinyl Collector · Soul/Funk · Chilling & vibing" {
		t.Fatalf("vibe card = %q", cards[0].VibeCard)
	}
	if cards[1].ImageURL != "" {
		t.Fatalf("card without image got url %q", cards[1].ImageURL)
	}

	presigner.failGet = true
	cards, err = s.Wall(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Wall() with signing failure error = %v", err)
	}
	if cards[0].ImageURL != "" {
		t.Fatalf("failed signature produced url %q", cards[0].ImageURL)
	}
}
