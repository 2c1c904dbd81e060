package model

// DownloadStatus is the coarse per-tour download status the UI keys on.
type DownloadStatus string

// Download statuses.
const (
	StatusIdle        DownloadStatus = "idle"
	StatusDownloading DownloadStatus = "downloading"
	StatusDownloaded  DownloadStatus = "downloaded"
	StatusError       DownloadStatus = "error"
)

// DownloadStage describes where a download job currently is. Stages advance
// in the fixed order preparing -> downloading -> saving -> done.
type DownloadStage string

// Download stages.
const (
	StagePreparing   DownloadStage = "preparing"
	StageDownloading DownloadStage = "downloading"
	StageSaving      DownloadStage = "saving"
	StageDone        DownloadStage = "done"
	StageError       DownloadStage = "error"
)

// DownloadState is the canonical per-tour download record owned by the
// foreground state store. The worker never holds this; it only emits deltas.
// Invariants: CompletedFiles <= TotalFiles; StatusDownloaded implies
// StageDone and CompletedFiles == TotalFiles.
type DownloadState struct {
	Status          DownloadStatus `json:"status"`
	Stage           DownloadStage  `json:"stage"`
	CompletedFiles  int            `json:"completedFiles"`
	TotalFiles      int            `json:"totalFiles"`
	CurrentIndex    int            `json:"currentIndex"`
	CurrentURL      string         `json:"currentUrl,omitempty"`
	ProgressPercent int            `json:"progressPercent"`
	LastUpdate      int64          `json:"lastUpdateTimestamp"` // Unix milliseconds
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	Announcement    string         `json:"screenreaderAnnouncement,omitempty"`
}

// Terminal reports whether the state describes a finished job (successful or
// not).
func (s *DownloadState) Terminal() bool {
	return s.Status == StatusDownloaded || s.Status == StatusError || s.Status == StatusIdle
}

// DownloadResult is the terminal summary of one download job.
type DownloadResult struct {
	OkCount    int      `json:"okCount"`
	FailCount  int      `json:"failCount"`
	FailedURLs []string `json:"failedUrls"`
}
