package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forkcast/backend/config"
)

// ImageService stores recipe hero images. With a bucket configured it uploads
// to S3 and returns public URLs; otherwise it writes to local disk and
// returns paths under /images served statically.
type ImageService struct {
	client   *http.Client
	s3Client *s3.Client
	bucket   string
	imageDir string
	logger   *zap.Logger
}

// NewImageService creates an image service from the storage config.
func NewImageService(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (*ImageService, error) {
	svc := &ImageService{
		client:   &http.Client{Timeout: 30 * time.Second},
		bucket:   cfg.Bucket,
		imageDir: cfg.ImageDir,
		logger:   logger,
	}

	if cfg.Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		svc.s3Client = s3.NewFromConfig(awsCfg)
	} else {
		if err := os.MkdirAll(cfg.ImageDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create image directory: %w", err)
		}
	}
	return svc, nil
}

// Download fetches a recipe's hero image and stores it, returning the path or
// URL clients should use. Failures are not fatal to an import, so the caller
// treats an empty result as "no image".
func (s *ImageService) Download(ctx context.Context, imageURL string, recipeID uuid.UUID) (string, error) {
	if imageURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("User-Agent", scraperUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	filename := fmt.Sprintf("recipe_%s%s", recipeID, extensionFor(contentType))
	return s.Store(ctx, data, filename, contentType)
}

// Store persists raw image bytes under the given filename.
func (s *ImageService) Store(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	if s.s3Client != nil {
		key := "recipe-images/" + filename
		_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return "", fmt.Errorf("failed to upload image to S3: %w", err)
		}
		url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
		s.logger.Info("uploaded image", zap.String("url", url), zap.Int("bytes", len(data)))
		return url, nil
	}

	path := filepath.Join(s.imageDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	s.logger.Info("saved image", zap.String("path", path), zap.Int("bytes", len(data)))
	return "/images/" + filename, nil
}

// SaveUpload stores an uploaded photo (for photo imports) and returns its
// serving path.
func (s *ImageService) SaveUpload(ctx context.Context, data []byte, originalName, contentType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = extensionFor(contentType)
	}
	filename := fmt.Sprintf("upload_%s%s", uuid.New(), ext)
	return s.Store(ctx, data, filename, contentType)
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	default:
		return ".jpg"
	}
}
