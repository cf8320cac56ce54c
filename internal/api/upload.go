package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/pkg/dto"
)

var mimeTypes = map[string]string{
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".jfif":     "image/jpeg",
	".png":      "image/png",
	".gif":      "image/gif",
	".bmp":      "image/bmp",
	".webp":     "image/webp",
	".tiff":     "image/tiff",
	".svg":      "image/svg+xml",
	".heic":     "image/heic",
	".heif":     "image/heif",
	".raw":      "image/raw",
	".ico":      "image/x-icon",
	".avif":     "image/avif",
	".ind":      "image/ind",
	".indd":     "image/indd",
	".indesign": "image/indesign",
	".eps":      "application/postscript",
	".ai":       "application/postscript",
	".pdf":      "application/pdf",
}

// MimeType guesses the content type of an upload from its file name.
func MimeType(name string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "application/octet-stream"
}

// Upload sends binary content to the asset side-channel and returns the
// stable URI to store as an image item's content.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(filepath.Base(name))+`"`)
	header.Set("Content-Type", MimeType(name))
	part, err := w.CreatePart(header)
	if err != nil {
		return "", apierr.Validation("upload", "create form part: %v", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", apierr.Validation("upload", "read content: %v", err)
	}
	if err := w.Close(); err != nil {
		return "", apierr.Validation("upload", "close form: %v", err)
	}

	var out dto.UploadResponse
	err = c.do(ctx, request{
		op:          "upload",
		method:      http.MethodPost,
		path:        "/api/file/upload",
		raw:         &buf,
		contentType: w.FormDataContentType(),
	}, &out)
	if err != nil {
		return "", err
	}
	if out.URI == "" {
		return "", apierr.New(apierr.KindServer, "upload", "no uri returned")
	}
	return out.URI, nil
}

func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apierr.Validation("upload", "open %s: %v", path, err)
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

func (c *Client) DeleteFile(ctx context.Context, uri string) error {
	return c.do(ctx, request{
		op:     "deleteFile",
		method: http.MethodPost,
		path:   "/api/file/delete",
		body:   dto.DeleteFileRequest{URI: uri},
	}, nil)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
