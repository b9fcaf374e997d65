package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePhotoType(t *testing.T) {
	assert.True(t, ValidatePhotoType("image/png", "x.bin"))
	assert.True(t, ValidatePhotoType("", "Me.JPEG"))
	assert.True(t, ValidatePhotoType("application/octet-stream", "me.webp"))
	assert.False(t, ValidatePhotoType("video/mp4", "clip.mp4"))
	assert.False(t, ValidatePhotoType("", "notes.txt"))
}

func TestContentTypeForFilename(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentTypeForFilename("a.jpg"))
	assert.Equal(t, "image/gif", ContentTypeForFilename("a.GIF"))
	assert.Equal(t, "application/octet-stream", ContentTypeForFilename("a"))
}

func TestPhotoKey(t *testing.T) {
	k := PhotoKey(42, "../../etc/Portrait.PNG")
	assert.True(t, strings.HasPrefix(k, "photos/42/"), k)
	assert.True(t, strings.HasSuffix(k, ".png"), k)
	assert.NotEqual(t, k, PhotoKey(42, "Portrait.png"))
	assert.False(t, strings.Contains(PhotoKey(1, "evil.sh"), ".sh"))
}

func TestUploadPhotoRejectsBeforeNetwork(t *testing.T) {
	s := &S3{cfg: S3Config{Region: "us-east-1", Bucket: "photos"}}
	_, err := s.UploadPhoto(context.Background(), 1, "a.png", "image/png", strings.NewReader("x"), MaxPhotoSize+1)
	assert.ErrorIs(t, err, ErrPhotoTooLarge)
	_, err = s.UploadPhoto(context.Background(), 1, "a.txt", "text/plain", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrPhotoType)

	empty := &S3{}
	_, err = empty.UploadPhoto(context.Background(), 1, "a.png", "image/png", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestPublicObjectURL(t *testing.T) {
	s := &S3{cfg: S3Config{Region: "us-west-2", Bucket: "outreach"}}
	assert.Equal(t, "https://outreach.s3.us-west-2.amazonaws.com/photos/1/a.png", s.PublicObjectURL("photos/1/a.png"))
}
