package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"capplan/internal/backup"
	"capplan/pkg/capacity"
)

// DefaultKeep is the number of export generations retained per series.
const DefaultKeep = 10

// Options configures an Exporter.
type Options struct {
	Keep     int
	Workbook bool
}

// Exporter writes timestamped export files next to the canonical document:
// <base>.export-<collection>.<epoch-ms>.csv and <base>.export.<epoch-ms>.xlsx.
type Exporter struct {
	canonical string
	keep      int
	workbook  bool
	log       *zap.SugaredLogger

	mu    sync.Mutex
	last  int64
	nowFn func() time.Time
}

// New returns an exporter for the canonical file at path.
func New(path string, opts Options, log *zap.SugaredLogger) *Exporter {
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Exporter{
		canonical: path,
		keep:      opts.Keep,
		workbook:  opts.Workbook,
		log:       log.Named("export"),
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// CSVSeries is the file series of one collection's CSV exports.
func (e *Exporter) CSVSeries(name capacity.CollectionName) backup.Series {
	return backup.SeriesFor(e.canonical, "export-"+string(name), ".csv")
}

// WorkbookSeries is the file series of the workbook exports.
func (e *Exporter) WorkbookSeries() backup.Series {
	return backup.SeriesFor(e.canonical, "export", ".xlsx")
}

func (e *Exporter) nextStamp() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.nowFn().UnixMilli()
	if s <= e.last {
		s = e.last + 1
	}
	e.last = s
	return s
}

// Push writes one export generation for doc and prunes old generations.
func (e *Exporter) Push(ctx context.Context, doc capacity.Document) error {
	stamp := e.nextStamp()
	var errs []error
	for _, t := range Tables(doc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		series := e.CSVSeries(capacity.CollectionName(t.Name))
		if err := writeFileAtomic(filepath.Join(series.Dir, series.Name(stamp)), func(w io.Writer) error {
			return WriteCSV(w, t)
		}); err != nil {
			errs = append(errs, fmt.Errorf("export %s: %w", t.Name, err))
			continue
		}
		if _, err := series.Prune(e.keep); err != nil {
			errs = append(errs, err)
		}
	}
	if e.workbook {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		series := e.WorkbookSeries()
		if err := writeFileAtomic(filepath.Join(series.Dir, series.Name(stamp)), func(w io.Writer) error {
			return writeWorkbook(ctx, w, doc)
		}); err != nil {
			errs = append(errs, fmt.Errorf("export workbook: %w", err))
		} else if _, err := series.Prune(e.keep); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	e.log.Debugw("export written", "stamp", stamp)
	return nil
}

// WriteCSV renders one table as CSV with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteWorkbook renders every table as one sheet of an xlsx workbook.
func WriteWorkbook(w io.Writer, doc capacity.Document) error {
	return writeWorkbook(context.Background(), w, doc)
}

// writeWorkbook stops between sheets once ctx is done.
func writeWorkbook(ctx context.Context, w io.Writer, doc capacity.Document) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, t := range Tables(doc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return err
		}
		if err := fillSheet(f, t); err != nil {
			return fmt.Errorf("sheet %s: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

func fillSheet(f *excelize.File, t Table) error {
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
		return err
	}
	for r, row := range t.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, cell, &cells); err != nil {
			return err
		}
	}
	return f.SetPanes(t.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeFileAtomic(path string, render func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := render(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
