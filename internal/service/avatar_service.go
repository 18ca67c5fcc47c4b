package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg" // jpeg decoder
	_ "image/png"  // png decoder
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"studyhub/internal/config"
	"studyhub/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // webp decoder
)

const (
	DefaultAvatarDir      = "/tmp/studyhub/avatars"
	DefaultAvatarMaxMB    = 5
	AvatarSize            = 256
	AvatarWebPQuality     = 80
	AvatarURLPrefix       = "/media/avatars/"
	maxAvatarSourceSidePx = 8000
)

// AvatarService normalizes uploaded profile pictures to square WebP files.
type AvatarService struct {
	users    *UserService
	dir      string
	maxBytes int64
}

func NewAvatarService(users *UserService, cfg *config.Config) *AvatarService {
	dir := DefaultAvatarDir
	maxMB := DefaultAvatarMaxMB
	if cfg != nil {
		if cfg.AvatarUploadDir != "" {
			dir = cfg.AvatarUploadDir
		}
		if cfg.AvatarMaxUploadSizeMB > 0 {
			maxMB = cfg.AvatarMaxUploadSizeMB
		}
	}
	return &AvatarService{users: users, dir: dir, maxBytes: int64(maxMB) * 1024 * 1024}
}

// Dir is where encoded avatars are written.
func (s *AvatarService) Dir() string { return s.dir }

// MaxBytes is the upload size limit.
func (s *AvatarService) MaxBytes() int64 { return s.maxBytes }

// Upload validates, crops, resizes and stores the image, then points the
// user's avatar_url at it.
func (s *AvatarService) Upload(ctx context.Context, userID uint, content []byte, contentType string) (*models.User, error) {
	if len(content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(content)) > s.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxBytes/(1024*1024)))
	}

	detected := http.DetectContentType(content)
	if !isAvatarMIME(detected) {
		return nil, models.NewValidationError("Avatar must be a JPEG, PNG or WebP image")
	}
	if provided := normalizeMIME(contentType); strings.HasPrefix(provided, "image/") && provided != detected &&
		!(provided == "image/jpg" && detected == "image/jpeg") {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if cfg.Width > maxAvatarSourceSidePx || cfg.Height > maxAvatarSourceSidePx {
		return nil, models.NewValidationError("Image dimensions too large")
	}
	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}

	encoded, err := encodeAvatar(src)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	sum := sha256.Sum256(encoded)
	name := hex.EncodeToString(sum[:]) + ".webp"

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, models.NewInternalError(err)
	}
	path := filepath.Join(s.dir, name)
	if _, statErr := os.Stat(path); statErr != nil {
		if err := os.WriteFile(path, encoded, 0o600); err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	return s.users.SetAvatarURL(ctx, userID, AvatarURLPrefix+name)
}

// encodeAvatar center-crops src to a square and scales it to AvatarSize.
func encodeAvatar(src image.Image) ([]byte, error) {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	if side <= 0 {
		return nil, fmt.Errorf("empty image")
	}
	crop := image.Rect(0, 0, side, side).Add(image.Point{
		X: b.Min.X + (b.Dx()-side)/2,
		Y: b.Min.Y + (b.Dy()-side)/2,
	})

	dst := image.NewRGBA(image.Rect(0, 0, AvatarSize, AvatarSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, dst, &webp.Options{Quality: AvatarWebPQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAvatarMIME(contentType string) bool {
	switch normalizeMIME(contentType) {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	return false
}

func normalizeMIME(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(mediaType)
}
