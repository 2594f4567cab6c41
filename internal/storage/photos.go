package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedPhoto indicates a file extension that is not an accepted image type.
var ErrUnsupportedPhoto = errors.New("unsupported photo type")

var photoExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// PhotoURLWriter records the profile photo location on the user.
type PhotoURLWriter interface {
	SetPhotoURL(ctx context.Context, userID, url string) error
}

// ProfileInvalidator drops cached copies of a profile.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// PhotoService replaces profile photos.
type PhotoService struct {
	Blobs  BlobStore
	Users  PhotoURLWriter
	Cache  ProfileInvalidator
	Logger *slog.Logger
}

// PhotoPrefix is the key prefix of a user's profile photos.
func PhotoPrefix(userID string) string {
	return fmt.Sprintf("profile-photos/%s/", userID)
}

// Replace uploads a new photo, points the profile at it and removes the
// previous photos. Cleanup failures are logged only.
func (s PhotoService) Replace(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ext := strings.ToLower(path.Ext(filename))
	if _, ok := photoExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPhoto, ext)
	}

	key := PhotoPrefix(userID) + uuid.NewString() + ext
	url, err := s.Blobs.Upload(ctx, key, r)
	if err != nil {
		return "", err
	}

	if err := s.Users.SetPhotoURL(ctx, userID, url); err != nil {
		if delErr := s.Blobs.Delete(ctx, key); delErr != nil {
			logger.Warn("remove orphaned photo", "userId", userID, "key", key, "error", delErr)
		}
		return "", err
	}

	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, userID); err != nil {
			logger.Warn("invalidate cached profile", "userId", userID, "error", err)
		}
	}

	refs, err := s.Blobs.List(ctx, PhotoPrefix(userID))
	if err != nil {
		logger.Warn("list previous photos", "userId", userID, "error", err)
		return url, nil
	}
	for _, ref := range refs {
		if ref.Key == key {
			continue
		}
		if err := s.Blobs.Delete(ctx, ref.Key); err != nil {
			logger.Warn("delete previous photo", "userId", userID, "key", ref.Key, "error", err)
		}
	}
	return url, nil
}
