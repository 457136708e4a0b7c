package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vertexflow/config"
	"vertexflow/logger"
	"vertexflow/models"
)

// ReportWriter renders the ranked averages as a flat UTF-8 text file:
// a header, a separator and one "ticker<TAB>rate" line per entry with the
// configured decimal precision. The file is written to a temp file in the
// target directory and renamed into place, so a failed run never leaves a
// truncated report and the previous report survives any earlier failure.
type ReportWriter struct {
	config *config.Config
	log    *logger.Log
}

func NewReportWriter(cfg *config.Config) *ReportWriter {
	return &ReportWriter{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// Write overwrites the configured report path with the given entries. The
// caller is expected to pass entries already ranked; Write does not sort.
func (w *ReportWriter) Write(entries []models.AverageRate) error {
	log := w.log.WithComponent("report_writer")
	path := w.config.Report.Path

	body := w.Render(entries)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace report: %w", err)
	}

	log.WithFields(logger.Fields{
		"path":    path,
		"tickers": len(entries),
	}).Info("report written")
	return nil
}

// Render returns the report body without touching the filesystem. The S3
// mirror uses it to upload exactly what was written locally.
func (w *ReportWriter) Render(entries []models.AverageRate) string {
	var b strings.Builder
	b.WriteString("Ticker\tAverage Funding Rate (%)\n")
	b.WriteString("---------------------------------\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s\t%.*f\n", entry.Ticker, w.config.Report.Precision, entry.Value)
	}
	return b.String()
}
