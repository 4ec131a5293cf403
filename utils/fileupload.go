package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

// photoContentTypes maps accepted repair photo extensions to their content type
var photoContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

var (
	// UploadDir is the directory where uploaded files are stored
	// Can be overridden for testing
	UploadDir = "./uploads"
)

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateImageFile validates the uploaded photo format and size
func ValidateImageFile(fileHeader *multipart.FileHeader) error {
	// Check file size
	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	if _, ok := ImageContentType(fileHeader.Filename); !ok {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only PNG and JPEG photos are allowed",
		}
	}

	return nil
}

// ImageContentType returns the content type for an accepted photo filename
func ImageContentType(filename string) (string, bool) {
	contentType, ok := photoContentTypes[strings.ToLower(filepath.Ext(filename))]
	return contentType, ok
}

// PhotoKey builds a storage key for a repair photo
func PhotoKey(repairID uint, kind, filename string) string {
	base := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	return fmt.Sprintf("repair_%d_%s_%d_%s", repairID, kind, time.Now().UnixNano(), base)
}

// PhotoRef identifies the repair photo behind a storage key
type PhotoRef struct {
	RepairID uint
	Kind     string
	Name     string
}

// ParsePhotoKey reverses PhotoKey. Keys from other sources are rejected.
func ParsePhotoKey(key string) (PhotoRef, bool) {
	if key == "" || key != filepath.Base(key) || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return PhotoRef{}, false
	}
	parts := strings.SplitN(key, "_", 5)
	if len(parts) != 5 || parts[0] != "repair" || parts[4] == "" {
		return PhotoRef{}, false
	}
	repairID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || repairID == 0 {
		return PhotoRef{}, false
	}
	if parts[2] != "before" && parts[2] != "after" {
		return PhotoRef{}, false
	}
	if _, err := strconv.ParseInt(parts[3], 10, 64); err != nil {
		return PhotoRef{}, false
	}
	return PhotoRef{RepairID: uint(repairID), Kind: parts[2], Name: parts[4]}, true
}

// SaveUploadedFile saves the uploaded file to the local filesystem under name
// Returns the file name relative to uploadDir
func SaveUploadedFile(fileHeader *multipart.FileHeader, uploadDir, name string) (filename string, err error) {
	// Create uploads directory if it doesn't exist
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	filename = filepath.Base(name)
	fullPath := filepath.Join(uploadDir, filename)

	// Open the uploaded file
	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	// Create the destination file
	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	// Copy the file
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}

// GetImageURL returns the URL path for accessing a locally stored photo
func GetImageURL(filename string) string {
	if filename == "" {
		return ""
	}
	return fmt.Sprintf("/api/v1/uploads/%s", filename)
}
