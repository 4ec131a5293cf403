package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"sync"

	"github.com/kendall-kelly/fleetglass-api/utils"
)

// MockImageService is an in-memory ImageService for tests. Uploads can be made to fail
// to exercise the error paths around photo storage.
type MockImageService struct {
	mu       sync.RWMutex
	photos   map[string][]byte
	deleted  []string
	failWith error
}

// NewMockImageService creates an empty mock store
func NewMockImageService() *MockImageService {
	return &MockImageService{photos: make(map[string][]byte)}
}

// SetAsMockForTesting installs the mock as the process image service
func (m *MockImageService) SetAsMockForTesting() {
	SetImageService(m)
}

// FailUploads makes every following upload return err; nil restores normal behaviour
func (m *MockImageService) FailUploads(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *MockImageService) UploadImage(_ context.Context, fileHeader *multipart.FileHeader, key string) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	m.mu.RLock()
	failWith := m.failWith
	m.mu.RUnlock()
	if failWith != nil {
		return "", failWith
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open photo: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	photoKey := "mock/" + key
	m.mu.Lock()
	m.photos[photoKey] = content
	m.mu.Unlock()
	return photoKey, nil
}

// GetImageURL returns a fake presigned URL, or an error for unknown keys
func (m *MockImageService) GetImageURL(_ context.Context, imageKey string) (string, error) {
	if imageKey == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.photos[imageKey]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("photo not found in mock storage: %s", imageKey)
	}
	return fmt.Sprintf("https://fleetglass-photos.s3.us-east-1.amazonaws.com/%s?mock=true", imageKey), nil
}

func (m *MockImageService) DeleteImage(_ context.Context, imageKey string) error {
	if imageKey == "" {
		return nil
	}

	m.mu.Lock()
	delete(m.photos, imageKey)
	m.deleted = append(m.deleted, imageKey)
	m.mu.Unlock()
	return nil
}

// GetUploadedImages returns a copy of every stored photo
func (m *MockImageService) GetUploadedImages() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	photos := make(map[string][]byte, len(m.photos))
	for k, v := range m.photos {
		photos[k] = v
	}
	return photos
}

// ImageExists reports whether imageKey is stored
func (m *MockImageService) ImageExists(imageKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.photos[imageKey]
	return exists
}

// DeletedKeys lists every key passed to DeleteImage, sorted
func (m *MockImageService) DeletedKeys() []string {
	m.mu.RLock()
	keys := append([]string(nil), m.deleted...)
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
