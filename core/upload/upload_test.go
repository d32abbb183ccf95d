package upload

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/maany-shr/eclass/core"
	testutil "github.com/maany-shr/eclass/tests"
)

type storeMock struct {
	objects map[Object]bool
	buckets []string
	err     error
}

func (s *storeMock) PresignPut(_ context.Context, obj Object, exp time.Duration) (string, error) {
	return "put://" + obj.Bucket + "/" + obj.Name + "?exp=" + exp.String(), s.err
}

func (s *storeMock) PresignGet(_ context.Context, obj Object, exp time.Duration) (string, error) {
	return "get://" + obj.Bucket + "/" + obj.Name + "?exp=" + exp.String(), s.err
}

func (s *storeMock) Exists(_ context.Context, obj Object) (bool, error) {
	return s.objects[obj], s.err
}

func (s *storeMock) EnsureBucket(_ context.Context, bucket string) error {
	s.buckets = append(s.buckets, bucket)
	return s.err
}

func (s *storeMock) Ping(context.Context) error { return s.err }

func setup(t *testing.T) (*Service, *storeMock, *testutil.Logger) {
	t.Helper()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = time.Now })

	store := &storeMock{objects: make(map[Object]bool)}
	logger := new(testutil.Logger)
	conf := core.ObjectStoreConfig{Bucket: "eClass Media", SignedURLExpiry: time.Hour}
	return NewService(store, conf, logger), store, logger
}

func TestBucketName(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "eclass", want: "eclass"},
		{raw: "eClass Media", want: "eclass-media"},
		{raw: "  Course_Assets!! ", want: "course-assets"},
		{raw: "a..b...c", want: "a.b.c"},
		{raw: "-.bucket.-", want: "bucket"},
		{raw: "ab", wantErr: true},
		{raw: "!!", wantErr: true},
		{raw: "x123456789012345678901234567890123456789012345678901234567890123456789", want: "x12345678901234567890123456789012345678901234567890123456789012"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := BucketName(tt.raw)
			if tt.wantErr {
				assert.True(t, core.IsValidationError(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhysicalName(t *testing.T) {
	tests := []struct {
		file    File
		want    string
		wantErr bool
	}{
		{file: File{ID: "42", LFN: "cover.png"}, want: "42/cover.png"},
		{file: File{ID: "42", LFN: "lessons/intro.mp4"}, want: "42/lessons/intro.mp4"},
		{file: File{ID: "42", LFN: "../secret"}, wantErr: true},
		{file: File{ID: "42", LFN: "/etc/passwd"}, wantErr: true},
		{file: File{ID: "4/2", LFN: "a.txt"}, wantErr: true},
		{file: File{ID: "42", LFN: ""}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.file.ID+":"+tt.file.LFN, func(t *testing.T) {
			got, err := PhysicalName(tt.file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_ForUpload(t *testing.T) {
	svc, store, logger := setup(t)
	ctx := context.Background()
	f := File{ID: "7", LFN: "cover.png"}

	creds, err := svc.ForUpload(ctx, f)
	assert.NoError(t, err)
	assert.Equal(t, Credentials{
		URL:        "put://eclass-media/7/cover.png?exp=1h0m0s",
		Bucket:     "eclass-media",
		ObjectName: "7/cover.png",
		ExpiresAt:  time.Date(2026, 4, 1, 13, 0, 0, 0, time.UTC),
	}, creds)
	assert.Empty(t, logger.Messages())

	store.objects[Object{Bucket: "eclass-media", Name: "7/cover.png"}] = true
	_, err = svc.ForUpload(ctx, f)
	assert.NoError(t, err)
	assert.Equal(t, []string{`WARN: file "7" (cover.png) already exists in bucket eclass-media and will be overwritten`}, logger.Messages())

	creds, err = svc.ForUpload(ctx, File{ID: "7", LFN: "cover.png", Bucket: "Avatars"})
	assert.NoError(t, err)
	assert.Equal(t, "avatars", creds.Bucket)

	store.err = errors.New("timeout")
	_, err = svc.ForUpload(ctx, f)
	assert.EqualError(t, err, "looking up file 7/cover.png: timeout")
}

func TestService_ForDownload(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	f := File{ID: "7", LFN: "notes.pdf"}

	_, err := svc.ForDownload(ctx, f)
	assert.Equal(t, ErrNotFound, err)

	store.objects[Object{Bucket: "eclass-media", Name: "7/notes.pdf"}] = true
	creds, err := svc.ForDownload(ctx, f)
	assert.NoError(t, err)
	assert.Equal(t, "get://eclass-media/7/notes.pdf?exp=1h0m0s", creds.URL)

	_, err = svc.ForDownload(ctx, File{ID: "7", LFN: "../x"})
	assert.True(t, core.IsValidationError(err))
}

func TestService_Init(t *testing.T) {
	svc, store, logger := setup(t)
	assert.NoError(t, svc.Init(context.Background()))
	assert.Equal(t, []string{"eclass-media"}, store.buckets)
	assert.Equal(t, []string{`INFO: object store initialized with bucket "eclass-media"`}, logger.Messages())

	store.err = errors.New("refused")
	assert.EqualError(t, svc.Init(context.Background()), "pinging object store: refused")
}
