package controllers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/utils"
)

func photoError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// GetUploadedImage handles GET /api/v1/uploads/:filename - serves a locally stored
// repair photo by the key it was saved under. Links are public, like presigned S3 URLs.
func GetUploadedImage(c *gin.Context) {
	key := c.Param("filename")
	ref, ok := utils.ParsePhotoKey(key)
	if !ok {
		photoError(c, http.StatusBadRequest, "INVALID_PHOTO_KEY", "Not a repair photo key")
		return
	}

	contentType, ok := utils.ImageContentType(ref.Name)
	if !ok {
		photoError(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only PNG and JPEG photos are supported")
		return
	}

	path := filepath.Join(utils.UploadDir, key)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		photoError(c, http.StatusNotFound, "PHOTO_NOT_FOUND", fmt.Sprintf("No %s photo stored for repair %d", ref.Kind, ref.RepairID))
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", ref.Name))
	c.Header("X-Repair-ID", strconv.FormatUint(uint64(ref.RepairID), 10))
	c.Header("X-Photo-Kind", ref.Kind)
	c.File(path)
}
