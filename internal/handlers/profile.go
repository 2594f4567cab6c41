package handlers

import (
	"errors"
	"net/http"

	"github.com/groupify/backend/internal/logging"
	"github.com/groupify/backend/internal/storage"
)

// maxPhotoBytes bounds profile photo uploads.
const maxPhotoBytes = 5 << 20

// ProfileHandler manages profile updates.
type ProfileHandler struct {
	Photos   PhotoReplacer
	Sessions SessionProvider
}

// UploadPhoto implements POST /api/v1/profile/photo with a multipart "photo" field.
func (h ProfileHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if h.Photos == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "photo storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid photo upload")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	url, err := h.Photos.Replace(ctx, userID, header.Filename, file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedPhoto) {
			respondError(ctx, w, http.StatusBadRequest, "unsupported photo type")
			return
		}
		logging.FromContext(ctx).Error("replace profile photo", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to store photo")
		return
	}

	if h.Sessions != nil {
		if loader, ok := h.Sessions.Lookup(userID); ok {
			if err := loader.RefreshProfile(ctx); err != nil {
				logging.FromContext(ctx).Warn("refresh session profile", "error", err)
			}
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"photoURL": url})
}
