package report

import (
	"encoding/json"
	"os"
	"time"

	"example.com/powerchunk/internal/common"
)

// RunSummary describes one processed log.
type RunSummary struct {
	Name             string    `json:"name"`
	Input            []string  `json:"input"`
	StartedAt        time.Time `json:"startedAt"`
	Duration         string    `json:"duration"`
	Lines            int64     `json:"lines"`
	Records          int64     `json:"records"`
	InvalidLines     int64     `json:"invalidLines"`
	DiscardedIdle    int64     `json:"discardedIdle"`
	PaddedRecords    int64     `json:"paddedRecords"`
	TruncatedRecords int64     `json:"truncatedRecords"`
	Chunks           int64     `json:"chunks"`
	FlaggedChunks    int       `json:"flaggedChunks"`
	ChunksSha256     string    `json:"chunksSha256,omitempty"`
}

func SaveRunSummaryJSON(sum RunSummary, out string) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, append(b, '\n'))
}

func LoadRunSummaryJSON(path string) (RunSummary, error) {
	var sum RunSummary
	b, err := os.ReadFile(path)
	if err != nil {
		return sum, err
	}
	err = json.Unmarshal(b, &sum)
	return sum, err
}
