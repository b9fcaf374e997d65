package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxPhotoSize is the largest accepted profile photo (5MB).
	MaxPhotoSize = 5 * 1024 * 1024
	// FolderPhotos is the S3 prefix for profile photos.
	FolderPhotos = "photos"
)

// Allowed photo MIME types and extensions.
var (
	AllowedPhotoTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/jpg":  ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
		"image/gif":  ".gif",
	}
	AllowedPhotoExtensions = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".gif":  "image/gif",
	}
)

var (
	ErrPhotoTooLarge = errors.New("photo exceeds maximum size")
	ErrPhotoType     = errors.New("photo must be a jpeg, png, webp or gif image")
	ErrNoBucket      = errors.New("photo bucket not configured")
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// S3 stores profile photos in a public-read bucket.
type S3 struct {
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client. Static credentials are used when both keys are
// set; otherwise the default credential chain applies.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ValidatePhotoType reports whether the content type or extension is an allowed image.
func ValidatePhotoType(contentType, filename string) bool {
	if contentType != "" {
		if _, ok := AllowedPhotoTypes[strings.ToLower(contentType)]; ok {
			return true
		}
	}
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		if _, ok := AllowedPhotoExtensions[ext]; ok {
			return true
		}
	}
	return false
}

// ContentTypeForFilename returns the MIME type for a photo filename extension.
func ContentTypeForFilename(filename string) string {
	if ct, ok := AllowedPhotoExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// PhotoKey returns the object key photos/{account_id}/{uuid}{ext}.
func PhotoKey(accountID int64, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := AllowedPhotoExtensions[ext]; !ok {
		ext = ""
	}
	return path.Join(FolderPhotos, strconv.FormatInt(accountID, 10), uuid.NewString()+ext)
}

// PublicObjectURL returns the unsigned URL of an object in the bucket.
func (s *S3) PublicObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// UploadPhoto validates and streams a profile photo to the bucket and returns its public URL.
func (s *S3) UploadPhoto(ctx context.Context, accountID int64, filename, contentType string, body io.Reader, size int64) (string, error) {
	if s.cfg.Bucket == "" {
		return "", ErrNoBucket
	}
	if size > MaxPhotoSize {
		return "", ErrPhotoTooLarge
	}
	if !ValidatePhotoType(contentType, filename) {
		return "", ErrPhotoType
	}
	if _, ok := AllowedPhotoTypes[strings.ToLower(contentType)]; !ok {
		contentType = ContentTypeForFilename(filename)
	}
	key := PhotoKey(accountID, filename)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	s.logger.Debug("photo uploaded", zap.Int64("account_id", accountID), zap.String("key", key))
	return s.PublicObjectURL(key), nil
}
