// Package sheets reads and writes registrations in a Google Sheets worksheet.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/geocoder89/tickethub/internal/domain/registration"
	"github.com/geocoder89/tickethub/internal/source"
)

// ValuesAPI is the subset of the Sheets values endpoint the source uses.
type ValuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
}

type Config struct {
	// Link is a full spreadsheet URL or a bare spreadsheet id.
	Link            string
	Sheet           string
	CredentialsFile string
	Columns         source.ColumnMap
}

type Source struct {
	api   ValuesAPI
	id    string
	sheet string
	cols  source.ColumnMap
	log   *slog.Logger

	mu sync.Mutex
	ix *source.Indices
}

func New(ctx context.Context, cfg Config, log *slog.Logger) (*Source, error) {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	srv, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return NewWithAPI(&serviceAPI{values: srv.Spreadsheets.Values}, cfg, log)
}

func NewWithAPI(api ValuesAPI, cfg Config, log *slog.Logger) (*Source, error) {
	id, err := source.SpreadsheetID(cfg.Link)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{api: api, id: id, sheet: cfg.Sheet, cols: cfg.Columns, log: log}, nil
}

// Fetch reads the whole worksheet. Rows whose status cells hold values outside the
// known set are logged and left out so they are never touched.
func (s *Source) Fetch(ctx context.Context) ([]registration.Record, error) {
	values, err := s.api.Get(ctx, s.id, source.QuoteSheet(s.sheet))
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", s.sheet, err)
	}
	grid := toStrings(values)
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: sheet %s has no header row", registration.ErrMissingColumn, s.sheet)
	}

	ix, err := s.cols.Resolve(grid[0])
	if err != nil {
		return nil, err
	}
	s.setIndices(ix)

	records, issues := source.Records(ix, grid[1:])
	for _, is := range issues {
		s.log.WarnContext(ctx, "row ignored, unrecognised status", "row", is.Row, "err", is.Err)
	}
	return records, nil
}

// FetchRow re-reads one data row.
func (s *Source) FetchRow(ctx context.Context, row int) (registration.Record, error) {
	ix, err := s.indices(ctx)
	if err != nil {
		return registration.Record{}, err
	}

	values, err := s.api.Get(ctx, s.id, source.RowRange(s.sheet, row))
	if err != nil {
		return registration.Record{}, fmt.Errorf("read row %d: %w", row, err)
	}
	grid := toStrings(values)
	if len(grid) == 0 {
		return registration.Record{}, fmt.Errorf("%w: row %d", registration.ErrRowNotFound, row)
	}

	records, issues := source.Records(ix, grid[:1])
	if len(issues) > 0 {
		return registration.Record{}, issues[0].Err
	}
	rec := records[0]
	rec.Row = row
	return rec, nil
}

func (s *Source) Write(ctx context.Context, row int, field registration.Field, value string) error {
	ix, err := s.indices(ctx)
	if err != nil {
		return err
	}

	col, ok := ix.Of(field)
	if !ok {
		return fmt.Errorf("%w: no column for %s", registration.ErrMissingColumn, field)
	}

	ref := source.CellRef(s.sheet, row, col)
	if err := s.api.Update(ctx, s.id, ref, [][]any{{value}}); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}

func (s *Source) setIndices(ix source.Indices) {
	s.mu.Lock()
	s.ix = &ix
	s.mu.Unlock()
}

// indices returns the column positions from the last Fetch, reading the header row
// when no fetch has happened yet.
func (s *Source) indices(ctx context.Context) (source.Indices, error) {
	s.mu.Lock()
	ix := s.ix
	s.mu.Unlock()
	if ix != nil {
		return *ix, nil
	}

	values, err := s.api.Get(ctx, s.id, source.HeaderRange(s.sheet))
	if err != nil {
		return source.Indices{}, fmt.Errorf("read header: %w", err)
	}
	grid := toStrings(values)
	if len(grid) == 0 {
		return source.Indices{}, fmt.Errorf("%w: sheet %s has no header row", registration.ErrMissingColumn, s.sheet)
	}

	resolved, err := s.cols.Resolve(grid[0])
	if err != nil {
		return source.Indices{}, err
	}
	s.setIndices(resolved)
	return resolved, nil
}

func toStrings(values [][]any) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				out[i][j] = fmt.Sprint(v)
			}
		}
	}
	return out
}

type serviceAPI struct {
	values *gsheets.SpreadsheetsValuesService
}

func (a *serviceAPI) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := a.values.Get(spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *serviceAPI) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := a.values.Update(spreadsheetID, rng, &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
