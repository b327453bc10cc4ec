package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarzo/otmap/internal/config"
)

func setupTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := &config.Config{
		DBPath:              filepath.Join(t.TempDir(), "test.db"),
		JWTSecret:           "test-secret",
		AdminUser:           "admin",
		AdminPass:           "admin",
		AdminTenantID:       1,
		OUIPath:             filepath.Join(t.TempDir(), "oui.txt"),
		PcapMaxSizeMB:       50,
		ParseTimeoutSeconds: 5,
	}
	require.NoError(t, Setup(c))

	r := gin.New()
	RegisterRoutes(r)
	return r
}

func loginToken(t *testing.T, r *gin.Engine) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestLoginAndProtocolCatalog(t *testing.T) {
	r := setupTestServer(t)
	token := loginToken(t, r)

	req := httptest.NewRequest(http.MethodGet, "/api/pcap/protocols", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Modbus")
	assert.Contains(t, w.Body.String(), "IEC 61850")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	r := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := setupTestServer(t)

	for _, path := range []string{
		"/api/pcap/protocols",
		"/api/asset-connections/network-topology",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestPreviewRejectsWrongExtension(t *testing.T) {
	r := setupTestServer(t)
	token := loginToken(t, r)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "capture.pcapng")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not a capture"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("site_id", "1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/pcap/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, ErrInvalidFileFormat, apiErr.ErrorCode)
	assert.Equal(t, "capture.pcapng", apiErr.File)
}

func TestUploadRejectsUnknownSite(t *testing.T) {
	r := setupTestServer(t)
	token := loginToken(t, r)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "plant.pcap")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0xd4, 0xc3, 0xb2, 0xa1})
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("site_id", "999"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/pcap/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, ErrSiteNotFound, apiErr.ErrorCode)
}
