package models

import (
	"reflect"
	"testing"

	"github.com/goccy/go-json"
)

func TestTrackIDs(t *testing.T) {
	uris := []string{
		"spotify:track:abc",
		"spotify:episode:nope",
		"spotify:track:def",
		"",
	}

	got := TrackIDs(uris)
	want := []string{"abc", "def"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TrackIDs() = %v, want %v", got, want)
	}
}

func TestResolutionReport(t *testing.T) {
	var report ResolutionReport

	report.Add(TrackMatch{Index: 0, URI: "spotify:track:1"})
	report.Add(TrackMatch{Index: 1, Failure: &TrackFailure{Index: 1, Song: "x", Reason: NoResults}})
	report.Add(TrackMatch{Index: 2, URI: "spotify:track:3"})

	if !reflect.DeepEqual(report.Matches, []string{"spotify:track:1", "spotify:track:3"}) {
		t.Errorf("unexpected matches %v", report.Matches)
	}
	if !reflect.DeepEqual(report.Indexes, []int{0, 2}) {
		t.Errorf("unexpected indexes %v", report.Indexes)
	}
	if len(report.Failures) != 1 || report.Failures[0].Index != 1 {
		t.Errorf("unexpected failures %+v", report.Failures)
	}
}

func TestFailureReason(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		tc := map[FailureReason]string{
			NoResults:          "No results",
			InvalidInput:       "Invalid input",
			RequestFailed:      "Request failed",
			UnexpectedResponse: "Unexpected response",
			FailureReason(42):  "Unknown",
		}
		for reason, want := range tc {
			if reason.String() != want {
				t.Errorf("expected %q, got %q", want, reason.String())
			}
		}
	})

	t.Run("encodes as text in JSON", func(t *testing.T) {
		data, err := json.Marshal(TrackFailure{Song: "a", Reason: RequestFailed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `{"index":0,"song":"a","reason":"Request failed"}`
		if string(data) != want {
			t.Errorf("expected %s, got %s", want, data)
		}
	})
}

func TestSongAndTrack(t *testing.T) {
	if (Song{Title: "A"}).String() != "A" {
		t.Error("song without artist should render title only")
	}
	if (Song{Title: "A", Artist: "B"}).String() != "A - B" {
		t.Error("song with artist should render title - artist")
	}

	track := Track{Artists: []string{"X", "Y"}, DurationMS: 185000}
	if track.ArtistNames() != "X, Y" {
		t.Errorf("unexpected artist names %s", track.ArtistNames())
	}
	if track.Duration() != "3:05" {
		t.Errorf("unexpected duration %s", track.Duration())
	}
}
