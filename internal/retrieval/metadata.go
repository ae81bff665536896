package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const maxDescriptionRunes = 200

// Metadata is the descriptive view of a remote resource returned without
// downloading it.
type Metadata struct {
	Title       string     `json:"title"`
	Duration    float64    `json:"duration"`
	Thumbnail   string     `json:"thumbnail"`
	Uploader    string     `json:"uploader"`
	ViewCount   int64      `json:"view_count"`
	Description string     `json:"description"`
	Formats     []Format   `json:"formats"`
	Subtitles   []Subtitle `json:"subtitles"`
}

// Format is one selectable video rendition.
type Format struct {
	FormatID   string  `json:"format_id"`
	Height     int     `json:"height"`
	Resolution string  `json:"resolution"`
	Ext        string  `json:"ext"`
	Filesize   *int64  `json:"filesize"`
	HasAudio   bool    `json:"has_audio"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	FPS        float64 `json:"fps,omitempty"`
}

// Subtitle is one caption track.
type Subtitle struct {
	Lang string `json:"lang"`
	Name string `json:"name"`
	Auto bool   `json:"auto"`
}

// rawInfo is the subset of the fetcher's info JSON this package reads.
type rawInfo struct {
	Title              string                      `json:"title"`
	Ext                string                      `json:"ext"`
	Filename           string                      `json:"filename"`
	LegacyFilename     string                      `json:"_filename"`
	Duration           float64                     `json:"duration"`
	Thumbnail          string                      `json:"thumbnail"`
	Uploader           string                      `json:"uploader"`
	ViewCount          float64                     `json:"view_count"`
	Description        string                      `json:"description"`
	Formats            []rawFormat                 `json:"formats"`
	Subtitles          map[string][]map[string]any `json:"subtitles"`
	AutomaticCaptions  map[string][]map[string]any `json:"automatic_captions"`
	RequestedDownloads []struct {
		Filepath string `json:"filepath"`
		Ext      string `json:"ext"`
	} `json:"requested_downloads"`
}

type rawFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Height         *float64 `json:"height"`
	FPS            *float64 `json:"fps"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

// outputPath returns the file the fetcher reported writing, if any.
func (r *rawInfo) outputPath() string {
	for _, d := range r.RequestedDownloads {
		if d.Filepath != "" {
			return d.Filepath
		}
	}
	if r.Filename != "" {
		return r.Filename
	}
	return r.LegacyFilename
}

func buildMetadata(raw *rawInfo) *Metadata {
	md := &Metadata{
		Title:       raw.Title,
		Duration:    raw.Duration,
		Thumbnail:   raw.Thumbnail,
		Uploader:    raw.Uploader,
		ViewCount:   int64(raw.ViewCount),
		Description: truncateRunes(raw.Description, maxDescriptionRunes),
		Formats:     buildFormats(raw.Formats),
		Subtitles:   buildSubtitles(raw.Subtitles, raw.AutomaticCaptions),
	}
	return md
}

// buildFormats keeps video renditions only, one per height/fps/audio
// combination, highest first.
func buildFormats(in []rawFormat) []Format {
	seen := make(map[string]struct{}, len(in))
	out := make([]Format, 0, len(in))
	for _, f := range in {
		if f.VCodec == "none" || f.Height == nil || *f.Height <= 0 {
			continue
		}
		height := int(*f.Height)
		var fps float64
		if f.FPS != nil {
			fps = *f.FPS
		}
		hasAudio := f.ACodec != "" && f.ACodec != "none"

		key := fmt.Sprintf("%d_%g_%t", height, fps, hasAudio)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		label := fmt.Sprintf("%dp", height)
		if fps > 30 {
			label += fmt.Sprintf(" %gfps", fps)
		}
		ext := f.Ext
		if ext == "" {
			ext = "mp4"
		}
		out = append(out, Format{
			FormatID:   f.FormatID,
			Height:     height,
			Resolution: label,
			Ext:        ext,
			Filesize:   pickSize(f.Filesize, f.FilesizeApprox),
			HasAudio:   hasAudio,
			VCodec:     codecFamily(f.VCodec),
			ACodec:     codecFamily(f.ACodec),
			FPS:        fps,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].FPS > out[j].FPS
	})
	return out
}

// buildSubtitles lists uploaded tracks first, then automatic captions for
// languages that have no uploaded track.
func buildSubtitles(manual, auto map[string][]map[string]any) []Subtitle {
	out := make([]Subtitle, 0, len(manual)+len(auto))
	for _, lang := range sortedLangs(manual) {
		out = append(out, Subtitle{Lang: lang, Name: LanguageName(lang)})
	}
	for _, lang := range sortedLangs(auto) {
		if len(manual[lang]) > 0 {
			continue
		}
		out = append(out, Subtitle{Lang: lang, Name: LanguageName(lang) + " (auto-generated)", Auto: true})
	}
	return out
}

func sortedLangs(tracks map[string][]map[string]any) []string {
	langs := make([]string, 0, len(tracks))
	for lang, subs := range tracks {
		if len(subs) > 0 {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

var languageNamer = display.Languages(language.English)

// LanguageName returns the English name of a BCP 47 code, or the code itself
// when it is not recognized.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := languageNamer.Name(tag); name != "" {
		return name
	}
	return code
}

func pickSize(exact, approx *float64) *int64 {
	for _, v := range []*float64{exact, approx} {
		if v != nil && *v > 0 {
			n := int64(*v)
			return &n
		}
	}
	return nil
}

func codecFamily(codec string) string {
	if codec == "" {
		return ""
	}
	family, _, _ := strings.Cut(codec, ".")
	return family
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
