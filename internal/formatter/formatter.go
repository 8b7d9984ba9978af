// package formatter exports generated playlists to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/shared"
)

// ExportToCSV writes one row per resolved track with columns: URI, Title, Artist, Album, Duration, DurationMS
func ExportToCSV(playlist *models.GeneratedPlaylist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"URI", "Title", "Artist", "Album", "Duration", "DurationMS"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range playlist.Tracks {
		record := []string{
			track.URI,
			track.Name,
			track.ArtistNames(),
			track.Album,
			track.Duration(),
			strconv.Itoa(track.DurationMS),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the playlist as Markdown with an optional cover image
func ExportToMarkdown(playlist *models.GeneratedPlaylist, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", playlist.Title)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	if playlist.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", playlist.Description)
	}
	if playlist.Prompt != "" {
		fmt.Fprintf(&buf, "**Prompt**: %s\n", playlist.Prompt)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d of %d songs found\n\n", len(playlist.URIs), len(playlist.Songs))

	buf.WriteString("## Tracks\n\n")
	for i, track := range playlist.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.ArtistNames(), track.Name, albumPart, track.Duration())
	}

	if len(playlist.Failures) > 0 {
		buf.WriteString("\n## Not Found\n\n")
		for _, f := range playlist.Failures {
			fmt.Fprintf(&buf, "- %s: %s\n", failureLabel(f), f.Reason)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders the playlist as plain text
func ExportToText(playlist *models.GeneratedPlaylist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", playlist.Title)
	if playlist.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", playlist.Description)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(playlist.Tracks))

	for i, track := range playlist.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.ArtistNames(), track.Name)
	}

	if len(playlist.Failures) > 0 {
		fmt.Fprintf(&buf, "\nNot found: %d\n", len(playlist.Failures))
		for _, f := range playlist.Failures {
			fmt.Fprintf(&buf, "  - %s\n", failureLabel(f))
		}
	}

	return buf.Bytes(), nil
}

func failureLabel(f models.TrackFailure) string {
	if f.Artist == "" {
		return f.Song
	}
	return f.Song + " - " + f.Artist
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty URL provided", shared.ErrInvalidInput)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON renders the playlist without its resolved track details
func ToMetadataJSON(playlist *models.GeneratedPlaylist) ([]byte, error) {
	metadata := *playlist
	metadata.Tracks = nil
	return shared.MarshalJSON(metadata, true)
}

// Slug turns a playlist title into a file name. Falls back to "playlist" when nothing usable remains.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "playlist"
	}
	return slug
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports a playlist to CSV with an accompanying metadata JSON file.
//
// Defaults to the slugged title as the base filename & creates {base}_tracks.csv and {base}_metadata.json
func WriteCSVExport(playlist *models.GeneratedPlaylist, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = Slug(playlist.Title)
	}

	csvData, err := ExportToCSV(playlist)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(playlist)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
	Warnings   []string
}

// WriteMarkdownExport exports a playlist to Markdown in a dedicated directory.
//
// Directory name defaults to the slugged title. The first track's album art is downloaded as the cover when
// available; a failed download is reported in Warnings and does not fail the export.
// Creates {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(client *http.Client, playlist *models.GeneratedPlaylist, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = Slug(playlist.Title)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if imageURL := coverURL(playlist); imageURL != "" {
		imageData, err := DownloadImage(client, imageURL)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to download cover image: %v", err))
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("failed to save cover image: %v", err))
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(playlist, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

func coverURL(playlist *models.GeneratedPlaylist) string {
	for _, t := range playlist.Tracks {
		if t.ImageURL != "" {
			return t.ImageURL
		}
	}
	return ""
}

// WriteTextExport exports a playlist to plain text.
//
// Defaults to {slug}_tracks.txt as the filename.
func WriteTextExport(playlist *models.GeneratedPlaylist, path string) (string, error) {
	if path == "" {
		path = Slug(playlist.Title) + "_tracks.txt"
	}

	textData, err := ExportToText(playlist)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}
