package audio

import (
	"strings"
	"testing"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", `{"format":{"duration":"12.500000"}}`, 12500 * time.Millisecond, false},
		{"missing", `{"format":{}}`, 0, false},
		{"not available", `{"format":{"duration":"N/A"}}`, 0, false},
		{"garbage duration", `{"format":{"duration":"abc"}}`, 0, true},
		{"not json", `oops`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbe([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseProbe error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseProbe = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeArgs(t *testing.T) {
	args := ffmpeg.Input("in.mp4").
		Output("out.mp3", encodeArgs(DefaultPrepareOptions())).
		OverWriteOutput().
		GetArgs()
	joined := strings.Join(args, " ")

	for _, want := range []string{"-i in.mp4", "-vn", "-ar 16000", "-ac 1", "-acodec libmp3lame", "-b:a 64k", "out.mp3", "-y"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestMediaFileDetection(t *testing.T) {
	tests := []struct {
		path         string
		audio, video bool
	}{
		{"lesson.MP3", true, false},
		{"lesson.m4a", true, false},
		{"lesson.flac", true, false},
		{"lesson.ogg", true, false},
		{"lesson.wav", true, false},
		{"lesson.mp4", false, true},
		{"lesson.webm", false, true},
		{"lesson.srt", false, false},
	}
	for _, tt := range tests {
		if IsAudioFile(tt.path) != tt.audio || IsVideoFile(tt.path) != tt.video {
			t.Errorf("%s: audio=%v video=%v", tt.path, IsAudioFile(tt.path), IsVideoFile(tt.path))
		}
		if IsMediaFile(tt.path) != (tt.audio || tt.video) {
			t.Errorf("%s: IsMediaFile mismatch", tt.path)
		}
	}
}
