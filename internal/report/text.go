package report

import (
	"bufio"

	"example.com/powerchunk/internal/analysis"
	"example.com/powerchunk/internal/common"
)

// AnalysisText streams chunk blocks into an atomically published text file.
type AnalysisText struct {
	af *common.AtomicFile
	bw *bufio.Writer
}

func CreateAnalysisText(path string) (*AnalysisText, error) {
	af, err := common.CreateAtomic(path)
	if err != nil {
		return nil, err
	}
	return &AnalysisText{af: af, bw: bufio.NewWriter(af)}, nil
}

func (t *AnalysisText) Write(rep analysis.ChunkReport) error {
	return analysis.WriteBlock(t.bw, rep)
}

// Commit flushes and publishes the report.
func (t *AnalysisText) Commit() error {
	if err := t.bw.Flush(); err != nil {
		t.af.Abort()
		return err
	}
	return t.af.Commit()
}

func (t *AnalysisText) Abort() {
	t.af.Abort()
}
