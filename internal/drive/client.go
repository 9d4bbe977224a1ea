package drive

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
)

const (
	// DefaultPageSize is used when no page size is requested
	DefaultPageSize = 10

	// MaxPageSize is the largest page the Drive API returns
	MaxPageSize = 1000

	// MaxFileSize caps file downloads and exports (10 MiB)
	MaxFileSize = 10 << 20

	listFields = "nextPageToken, files(id, name, mimeType)"
	fileFields = "id, name, mimeType, size, modifiedTime, webViewLink"
)

// ErrFileTooLarge is returned when file content exceeds MaxFileSize
var ErrFileTooLarge = fmt.Errorf("file exceeds the %d MiB read limit", MaxFileSize>>20)

// ErrUnsupportedExport is returned for Google Workspace types that cannot be exported
var ErrUnsupportedExport = errors.New("file type cannot be exported")

// Client wraps the Google Drive API service
type Client struct {
	service *drive.Service
	metrics *instrumentation.Metrics
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	endpoint string
	metrics  *instrumentation.Metrics
}

// WithEndpoint overrides the Drive API base URL
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithMetrics records Drive API calls
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// NewClient creates a Drive client authenticated with tok
func NewClient(ctx context.Context, tok *oauth2.Token, opts ...Option) (*Client, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, errors.New("a Google access token is required")
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	copts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}
	if o.endpoint != "" {
		copts = append(copts, option.WithEndpoint(o.endpoint))
	}

	svc, err := drive.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &Client{service: svc, metrics: o.metrics}, nil
}

// observe runs fn inside a span and records the call
func (c *Client) observe(ctx context.Context, operation string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, operation, attrs...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive, operation, status, time.Since(start))
	return err
}

// Search runs a full-text search over the user's files
func (c *Client) Search(ctx context.Context, query string, pageSize int) (*FileList, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}
	q := fmt.Sprintf("fullText contains '%s' and trashed = false", escapeQuery(query))

	var out *FileList
	err := c.observe(ctx, instrumentation.OperationSearch, func(ctx context.Context) error {
		res, err := c.service.Files.List().
			Context(ctx).
			Q(q).
			PageSize(clampPageSize(pageSize)).
			Fields(listFields).
			Do()
		if err != nil {
			return fmt.Errorf("failed to search files: %w", err)
		}
		out = convertFileList(res)
		return nil
	})
	return out, err
}

// ListFiles returns one page of the user's files. pageToken is empty for the first page.
func (c *Client) ListFiles(ctx context.Context, pageToken string, pageSize int) (*FileList, error) {
	var out *FileList
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		call := c.service.Files.List().
			Context(ctx).
			PageSize(clampPageSize(pageSize)).
			Fields(listFields)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		out = convertFileList(res)
		return nil
	})
	return out, err
}

// GetFile retrieves metadata for a specific file
func (c *Client) GetFile(ctx context.Context, fileID string) (*FileInfo, error) {
	if fileID == "" {
		return nil, errors.New("fileID is required")
	}

	var out *FileInfo
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		f, err := c.service.Files.Get(fileID).Context(ctx).Fields(fileFields).Do()
		if err != nil {
			return fmt.Errorf("failed to get file %s: %w", fileID, err)
		}
		out = convertToFileInfo(f)
		return nil
	})
	return out, err
}

// ReadFile returns the content of a file, exporting Google Workspace files
func (c *Client) ReadFile(ctx context.Context, fileID string) (*FileContent, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	mimeType := file.MimeType
	mimeClass := instrumentation.MimeClassAttribute(file.MimeType)
	var data []byte
	if IsGoogleWorkspace(file.MimeType) {
		exportType, ok := ExportMimeType(file.MimeType)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedExport, file.MimeType)
		}
		mimeType = exportType
		err = c.observe(ctx, instrumentation.OperationExport, func(ctx context.Context) error {
			resp, err := c.service.Files.Export(fileID, exportType).Context(ctx).Download()
			if err != nil {
				return fmt.Errorf("failed to export file %s: %w", fileID, err)
			}
			data, err = readCapped(resp)
			return err
		}, mimeClass)
	} else {
		err = c.observe(ctx, instrumentation.OperationRead, func(ctx context.Context) error {
			resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
			if err != nil {
				return fmt.Errorf("failed to download file %s: %w", fileID, err)
			}
			data, err = readCapped(resp)
			return err
		}, mimeClass)
	}
	if err != nil {
		return nil, err
	}

	content := &FileContent{File: file, MimeType: mimeType}
	if IsTextMimeType(mimeType) {
		content.Text = string(data)
	} else {
		content.Blob = base64.StdEncoding.EncodeToString(data)
	}
	return content, nil
}

func readCapped(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.ContentLength > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func clampPageSize(n int) int64 {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return int64(n)
}

func convertFileList(res *drive.FileList) *FileList {
	out := &FileList{
		Files:         make([]*FileInfo, 0, len(res.Files)),
		NextPageToken: res.NextPageToken,
	}
	for _, f := range res.Files {
		out.Files = append(out.Files, convertToFileInfo(f))
	}
	return out
}

// convertToFileInfo converts a Drive API File to our FileInfo type
func convertToFileInfo(f *drive.File) *FileInfo {
	info := &FileInfo{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: f.WebViewLink,
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			info.ModifiedTime = t
		}
	}
	return info
}
