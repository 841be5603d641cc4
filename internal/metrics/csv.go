package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"udpwatch/internal/model"
)

var historyHeader = []string{
	"timestamp",
	"channel",
	"endpoint",
	"outcome",
	"pid",
	"bytes",
	"duration_ms",
	"reason",
}

// WriteHistory writes outcome records to CSV with a fixed column order.
func WriteHistory(w io.Writer, items []model.HistoryRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(historyHeader); err != nil {
		return err
	}
	return writeRecords(writer, items)
}

// AppendHistory appends records to path, writing the header only when the
// file is new or empty.
func AppendHistory(path string, items []model.HistoryRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(historyHeader); err != nil {
			return err
		}
	}
	return writeRecords(writer, items)
}

func writeRecords(writer *csv.Writer, items []model.HistoryRecord) error {
	for _, r := range items {
		record := []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.Channel,
			r.Endpoint,
			r.Outcome.String(),
			strconv.Itoa(r.PID),
			strconv.Itoa(r.Bytes),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			r.Reason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
