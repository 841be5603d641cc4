package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"udpwatch/internal/model"
)

// ReadHistory loads outcome records from a CSV file.
func ReadHistory(path string) ([]model.HistoryRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readHistory(file)
}

func readHistory(r io.Reader) ([]model.HistoryRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == "timestamp" {
		start = 1
	}

	items := make([]model.HistoryRecord, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(historyHeader) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		outcome, err := model.ParseOutcomeKind(rec[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		pid, _ := strconv.Atoi(rec[4])
		bytes, _ := strconv.Atoi(rec[5])
		durationMs, _ := strconv.ParseInt(rec[6], 10, 64)
		items = append(items, model.HistoryRecord{
			Timestamp: ts,
			Channel:   rec[1],
			Endpoint:  rec[2],
			Outcome:   outcome,
			PID:       pid,
			Bytes:     bytes,
			Duration:  time.Duration(durationMs) * time.Millisecond,
			Reason:    rec[7],
		})
	}

	return items, nil
}
