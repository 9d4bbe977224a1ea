package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
)

// valueInputRaw stores values exactly as given, without formula or number parsing
const valueInputRaw = "RAW"

// Client wraps the Google Sheets API service
type Client struct {
	service *sheets.Service
	metrics *instrumentation.Metrics
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	endpoint string
	metrics  *instrumentation.Metrics
}

// WithEndpoint overrides the Sheets API base URL
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithMetrics records Sheets API calls
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// NewClient creates a Sheets client authenticated with tok
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
	svc, err := sheets.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	return &Client{service: svc, metrics: o.metrics}, nil
}

func (c *Client) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceSheets, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceSheets, operation, status, time.Since(start))
	return err
}

// UpdateCell writes value into the cell at a1Range
func (c *Client) UpdateCell(ctx context.Context, spreadsheetID, a1Range, value string) error {
	if spreadsheetID == "" {
		return errors.New("spreadsheet id is required")
	}
	if a1Range == "" {
		return errors.New("range is required")
	}

	return c.observe(ctx, instrumentation.OperationUpdate, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.Values.Update(spreadsheetID, a1Range, &sheets.ValueRange{
			Values: [][]interface{}{{value}},
		}).ValueInputOption(valueInputRaw).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to update %s in spreadsheet %s: %w", a1Range, spreadsheetID, err)
		}
		return nil
	})
}

// Read returns the values of ranges, keyed by the range the API reports.
// With no ranges every sheet is read in full.
func (c *Client) Read(ctx context.Context, spreadsheetID string, ranges []string) (map[string][][]interface{}, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	if len(ranges) == 0 {
		titles, err := c.sheetTitles(ctx, spreadsheetID)
		if err != nil {
			return nil, err
		}
		for _, title := range titles {
			ranges = append(ranges, quoteSheetName(title))
		}
		if len(ranges) == 0 {
			return map[string][][]interface{}{}, nil
		}
	}

	out := make(map[string][][]interface{}, len(ranges))
	err := c.observe(ctx, instrumentation.OperationRead, func(ctx context.Context) error {
		res, err := c.service.Spreadsheets.Values.BatchGet(spreadsheetID).
			Ranges(ranges...).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to read spreadsheet %s: %w", spreadsheetID, err)
		}
		for _, vr := range res.ValueRanges {
			values := vr.Values
			if values == nil {
				values = [][]interface{}{}
			}
			out[vr.Range] = values
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) sheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	var titles []string
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		ss, err := c.service.Spreadsheets.Get(spreadsheetID).
			Fields("sheets.properties.title").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to get spreadsheet %s: %w", spreadsheetID, err)
		}
		for _, s := range ss.Sheets {
			if s.Properties != nil {
				titles = append(titles, s.Properties.Title)
			}
		}
		return nil
	})
	return titles, err
}

// quoteSheetName turns a sheet title into an A1 range covering the whole sheet
func quoteSheetName(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
