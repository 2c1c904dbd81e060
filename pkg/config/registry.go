package config

// Persistent state keys (client-state KV). Trigger sessions are
// deliberately absent: the triggered set dies with the session.
const (
	KeyDownloadStates = "download_states"
	KeyAudioVolume    = "audio_volume"
	KeyLastTour       = "last_tour"
)
