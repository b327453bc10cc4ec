// Capture import endpoints: preview (diff only) and upload (commit).
// Validation rejects the whole batch before any parsing starts; parsing
// itself happens one file at a time in isolated worker processes.
package server

import (
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmarzo/otmap/internal/capture"
	"github.com/dmarzo/otmap/internal/inventory"
)

// Error codes surfaced to the UI for pre-parse validation failures.
const (
	ErrInvalidFileFormat = "INVALID_FILE_FORMAT"
	ErrFileTooLarge      = "FILE_TOO_LARGE"
	ErrSiteNotFound      = "SITE_NOT_FOUND"
)

// apiError is the structured validation error naming the offending file.
type apiError struct {
	Status    int    `json:"-"`
	ErrorCode string `json:"error_code"`
	File      string `json:"file,omitempty"`
	Detail    string `json:"detail"`
}

// validateBatch checks extension and size for every file before anything is
// parsed. One bad file rejects the entire batch.
func validateBatch(files []*multipart.FileHeader) *apiError {
	for _, fh := range files {
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pcap") {
			return &apiError{
				Status:    http.StatusBadRequest,
				ErrorCode: ErrInvalidFileFormat,
				File:      fh.Filename,
				Detail:    "file " + fh.Filename + " is not a .pcap capture",
			}
		}
		if fh.Size > cfg.PcapMaxBytes() {
			return &apiError{
				Status:    http.StatusBadRequest,
				ErrorCode: ErrFileTooLarge,
				File:      fh.Filename,
				Detail: "file " + fh.Filename + " exceeds the " +
					strconv.Itoa(cfg.PcapMaxSizeMB) + "MB limit",
			}
		}
	}
	return nil
}

// collectBatch validates the request, parses every uploaded file in its own
// worker and folds the results into one aggregate. Returns the scope the
// import runs under. A file that fails to parse aborts the whole batch.
func collectBatch(c *gin.Context) (*capture.Result, inventory.Scope, *apiError) {
	scope := sessionScope(c)

	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		return nil, scope, &apiError{
			Status:    http.StatusBadRequest,
			ErrorCode: ErrInvalidFileFormat,
			Detail:    "at least one capture file is required",
		}
	}
	files := form.File["files"]

	if apiErr := validateBatch(files); apiErr != nil {
		return nil, scope, apiErr
	}

	siteID, err := strconv.ParseUint(c.PostForm("site_id"), 10, 32)
	if err != nil {
		return nil, scope, &apiError{
			Status:    http.StatusBadRequest,
			ErrorCode: ErrSiteNotFound,
			Detail:    "site_id is required",
		}
	}
	site, err := repo.SiteByID(scope.TenantID, uint(siteID))
	if err != nil || site == nil {
		return nil, scope, &apiError{
			Status:    http.StatusNotFound,
			ErrorCode: ErrSiteNotFound,
			Detail:    "site not found",
		}
	}
	scope.SiteID = site.ID

	aggregate := capture.NewResult()
	for _, fh := range files {
		tmpFile, err := os.CreateTemp("", "otmap-*.pcap")
		if err != nil {
			return nil, scope, &apiError{
				Status:    http.StatusInternalServerError,
				ErrorCode: ErrInvalidFileFormat,
				File:      fh.Filename,
				Detail:    "saving upload: " + err.Error(),
			}
		}
		tmp := tmpFile.Name()
		tmpFile.Close()
		if err := c.SaveUploadedFile(fh, tmp); err != nil {
			os.Remove(tmp)
			return nil, scope, &apiError{
				Status:    http.StatusInternalServerError,
				ErrorCode: ErrInvalidFileFormat,
				File:      fh.Filename,
				Detail:    "saving upload: " + err.Error(),
			}
		}

		res, err := capture.ParseIsolated(c.Request.Context(), tmp, cfg.ParseTimeout())
		os.Remove(tmp)
		if err != nil {
			return nil, scope, &apiError{
				Status:    http.StatusBadRequest,
				ErrorCode: ErrInvalidFileFormat,
				File:      fh.Filename,
				Detail:    "parsing " + fh.Filename + ": " + err.Error(),
			}
		}
		aggregate.Merge(res)
	}

	return aggregate, scope, nil
}

// handlePcapPreview returns the reconciliation diff without persisting.
//
//	POST /api/pcap/preview  (multipart: files[], site_id)
func handlePcapPreview(c *gin.Context) {
	aggregate, scope, apiErr := collectBatch(c)
	if apiErr != nil {
		c.JSON(apiErr.Status, apiErr)
		return
	}

	preview, err := engine.Preview(scope, aggregate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}

// handlePcapUpload runs the same matching as preview and persists the
// result.
//
//	POST /api/pcap/upload  (multipart: files[], site_id)
func handlePcapUpload(c *gin.Context) {
	aggregate, scope, apiErr := collectBatch(c)
	if apiErr != nil {
		c.JSON(apiErr.Status, apiErr)
		return
	}

	result, err := engine.Commit(scope, aggregate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
