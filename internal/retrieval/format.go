package retrieval

// defaultSelector prefers single-file formats that already carry audio, so no
// merge step is needed, starting at 720p.
const defaultSelector = "best[height<=720]/best[height<=480]/best[height<=360]/best[height<=1080]/best"

// FormatSelector returns the yt-dlp format expression for a request and the
// container to merge into, if any.
func FormatSelector(formatID string) (selector, mergeFormat string) {
	if formatID == "" {
		return defaultSelector, ""
	}
	return formatID + "+bestaudio/best/" + formatID, "mp4"
}
