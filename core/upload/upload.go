// Package upload hands out presigned object storage URLs so clients move file contents without going through the API.
package upload

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/maany-shr/eclass/core"
)

var (
	ErrNotFound = errors.New("file not found")

	invalidBucketChars = regexp.MustCompile(`[^a-z0-9.-]+`)
	repeatedDots       = regexp.MustCompile(`\.{2,}`)

	nowFunc = time.Now // mockable
)

// File is a file as known by the backend: its ID and logical file name.
type File struct {
	ID     string `json:"id" validate:"required,max=64"`
	LFN    string `json:"lfn" validate:"required,max=255"`
	Bucket string `json:"bucket" validate:"omitempty,max=63"`
}

// Object locates a stored file.
type Object struct {
	Bucket string
	Name   string
}

// Credentials let a client upload or download a single object.
type Credentials struct {
	URL        string    `json:"url"`
	Bucket     string    `json:"bucket"`
	ObjectName string    `json:"objectName"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type ObjectStore interface {
	PresignPut(ctx context.Context, obj Object, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, obj Object, expiry time.Duration) (string, error)
	Exists(ctx context.Context, obj Object) (bool, error)
	// EnsureBucket creates bucket unless it exists.
	EnsureBucket(ctx context.Context, bucket string) error
	Ping(ctx context.Context) error
}

// BucketName turns raw into a valid S3 bucket name.
func BucketName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = invalidBucketChars.ReplaceAllString(name, "-")
	name = repeatedDots.ReplaceAllString(name, ".")
	if len(name) > 63 {
		name = name[:63]
	}
	name = strings.Trim(name, ".-")
	if len(name) < 3 {
		return "", core.NewValidationError(nil, core.FieldError{
			Field: "bucket", Error: fmt.Sprintf("%q is too short for a bucket name", raw),
		})
	}
	return name, nil
}

// PhysicalName is the object name of f: "<id>/<lfn>".
func PhysicalName(f File) (string, error) {
	lfn := path.Clean("/" + f.LFN)[1:]
	if f.ID == "" || strings.Contains(f.ID, "/") || lfn == "" || lfn != f.LFN {
		return "", core.NewValidationError(nil, core.FieldError{
			Field: "lfn", Error: fmt.Sprintf("invalid file name %q", f.LFN),
		})
	}
	return f.ID + "/" + lfn, nil
}

type Service struct {
	store  ObjectStore
	bucket string
	expiry time.Duration
	logger core.Logger
}

func NewService(store ObjectStore, conf core.ObjectStoreConfig, logger core.Logger) *Service {
	return &Service{store: store, bucket: conf.Bucket, expiry: conf.SignedURLExpiry, logger: logger}
}

// Init checks the store is reachable and creates the default bucket.
func (svc *Service) Init(ctx context.Context) error {
	if err := svc.store.Ping(ctx); err != nil {
		return errors.Wrap(err, "pinging object store")
	}
	bucket, err := BucketName(svc.bucket)
	if err != nil {
		return err
	}
	if err := svc.store.EnsureBucket(ctx, bucket); err != nil {
		return errors.Wrapf(err, "ensuring bucket %s", bucket)
	}
	svc.logger.Info(fmt.Sprintf("object store initialized with bucket %q", bucket))
	return nil
}

func (svc *Service) object(f File) (Object, error) {
	raw := f.Bucket
	if raw == "" {
		raw = svc.bucket
	}
	bucket, err := BucketName(raw)
	if err != nil {
		return Object{}, err
	}
	name, err := PhysicalName(f)
	if err != nil {
		return Object{}, err
	}
	return Object{Bucket: bucket, Name: name}, nil
}

// ForUpload returns a URL the client can PUT the contents of f to. Existing contents get overwritten.
func (svc *Service) ForUpload(ctx context.Context, f File) (Credentials, error) {
	obj, err := svc.object(f)
	if err != nil {
		return Credentials{}, err
	}
	exists, err := svc.store.Exists(ctx, obj)
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "looking up file %s", obj.Name)
	}
	if exists {
		svc.logger.Warn(fmt.Sprintf("file %q (%s) already exists in bucket %s and will be overwritten", f.ID, f.LFN, obj.Bucket))
	}

	url, err := svc.store.PresignPut(ctx, obj, svc.expiry)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "presigning upload")
	}
	return svc.credentials(url, obj), nil
}

// ForDownload returns a URL the client can GET the contents of f from.
func (svc *Service) ForDownload(ctx context.Context, f File) (Credentials, error) {
	obj, err := svc.object(f)
	if err != nil {
		return Credentials{}, err
	}
	exists, err := svc.store.Exists(ctx, obj)
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "looking up file %s", obj.Name)
	}
	if !exists {
		return Credentials{}, ErrNotFound
	}

	url, err := svc.store.PresignGet(ctx, obj, svc.expiry)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "presigning download")
	}
	return svc.credentials(url, obj), nil
}

func (svc *Service) credentials(url string, obj Object) Credentials {
	return Credentials{
		URL:        url,
		Bucket:     obj.Bucket,
		ObjectName: obj.Name,
		ExpiresAt:  nowFunc().UTC().Add(svc.expiry),
	}
}
