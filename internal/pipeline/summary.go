package pipeline

import "log/slog"

// StageResult counts one stage's outcomes for the run report.
type StageResult struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`  // artifacts computed this run
	CacheHits int    `json:"cache_hits"` // artifacts satisfied from cache
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped,omitempty"` // artifacts never dispatched before the stage stopped
}

// Failure records one artifact dropped by a stage.
type Failure struct {
	Stage      string `json:"stage"`
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
}

// Summary is the end-of-run report: partial progress is legible and maps
// directly to what is resumable on the next invocation.
type Summary struct {
	RunID    string        `json:"run_id"`
	Stages   []StageResult `json:"stages"`
	Failures []Failure     `json:"failures,omitempty"`
	Uploaded int           `json:"uploaded"`
	Aborted  bool          `json:"aborted,omitempty"`
}

func (s *Summary) addStage(r StageResult) {
	s.Stages = append(s.Stages, r)
}

// TotalFailed counts dropped artifacts across all stages.
func (s *Summary) TotalFailed() int {
	n := 0
	for _, st := range s.Stages {
		n += st.Failed
	}
	return n
}

// Log emits the summary through the run logger.
func (s *Summary) Log(logger *slog.Logger) {
	for _, st := range s.Stages {
		logger.Info("stage summary",
			slog.String("stage", st.Name),
			slog.Int("processed", st.Processed),
			slog.Int("cache_hits", st.CacheHits),
			slog.Int("failed", st.Failed),
			slog.Int("skipped", st.Skipped))
	}
	for _, f := range s.Failures {
		logger.Warn("artifact failed",
			slog.String("stage", f.Stage),
			slog.String("identifier", f.Identifier),
			slog.String("error", f.Error))
	}
	logger.Info("run summary",
		slog.String("run_id", s.RunID),
		slog.Int("uploaded", s.Uploaded),
		slog.Int("failed", s.TotalFailed()),
		slog.Bool("aborted", s.Aborted))
}
