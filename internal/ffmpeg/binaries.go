package ffmpeg

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	ffmpegReleaseVersion = "6.1"
	ffmpegReleaseBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"

	EnvFFmpegPath  = "BILINGO_FFMPEG_PATH"
	EnvFFprobePath = "BILINGO_FFPROBE_PATH"
	// EnvNoDownload disables fetching a release bundle when nothing is installed.
	EnvNoDownload = "BILINGO_FFMPEG_NO_DOWNLOAD"
)

// ErrNotFound means neither an override, $PATH nor the cache had the binaries.
var ErrNotFound = errors.New("ffmpeg binaries not found")

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

var (
	ensureOnce sync.Once
	ensureErr  error
	ensurePath BinaryPaths
)

// Ensure resolves ffmpeg and ffprobe once per process.
func Ensure() (BinaryPaths, error) {
	ensureOnce.Do(func() {
		ensurePath, ensureErr = locate(exec.LookPath, downloadAndExtract)
	})
	return ensurePath, ensureErr
}

func FFmpegPath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFmpeg, nil
}

func FFprobePath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFprobe, nil
}

type lookPathFunc func(file string) (string, error)

type downloadFunc func(assetName, installDir string) error

// locate checks env overrides, then $PATH, then the per-user cache, and as
// a last resort downloads the release bundle into that cache.
func locate(lookPath lookPathFunc, download downloadFunc) (BinaryPaths, error) {
	paths := BinaryPaths{
		FFmpeg:  os.Getenv(EnvFFmpegPath),
		FFprobe: os.Getenv(EnvFFprobePath),
	}
	if paths.FFmpeg == "" {
		if found, err := lookPath("ffmpeg"); err == nil {
			paths.FFmpeg = found
		}
	}
	if paths.FFprobe == "" {
		if found, err := lookPath("ffprobe"); err == nil {
			paths.FFprobe = found
		}
	}
	if paths.FFmpeg != "" && paths.FFprobe != "" {
		return paths, nil
	}

	installDir, err := cacheDir()
	if err != nil {
		return BinaryPaths{}, err
	}
	cached := BinaryPaths{
		FFmpeg:  filepath.Join(installDir, "ffmpeg"+executableSuffix()),
		FFprobe: filepath.Join(installDir, "ffprobe"+executableSuffix()),
	}
	if binariesExist(cached) {
		return cached, nil
	}

	if os.Getenv(EnvNoDownload) != "" {
		return BinaryPaths{}, fmt.Errorf("%w: set %s and %s or install ffmpeg", ErrNotFound, EnvFFmpegPath, EnvFFprobePath)
	}

	assetName, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return BinaryPaths{}, fmt.Errorf("create ffmpeg cache dir: %w", err)
	}
	if err := download(assetName, installDir); err != nil {
		return BinaryPaths{}, err
	}
	if !binariesExist(cached) {
		return BinaryPaths{}, fmt.Errorf("%w after extraction", ErrNotFound)
	}
	if runtime.GOOS != "windows" {
		for _, p := range []string{cached.FFmpeg, cached.FFprobe} {
			if err := os.Chmod(p, 0o755); err != nil {
				return BinaryPaths{}, fmt.Errorf("chmod %s: %w", filepath.Base(p), err)
			}
		}
	}
	return cached, nil
}

func cacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "bilingo", "ffmpeg", ffmpegReleaseVersion, runtime.GOOS, runtime.GOARCH), nil
}

func assetForPlatform(goos, goarch string) (string, error) {
	switch {
	case goos == "linux" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-linux-64.zip", nil
	case goos == "linux" && goarch == "arm64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-linux-arm-64.zip", nil
	case goos == "darwin" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-macos-64.zip", nil
	case goos == "windows" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-win-64.zip", nil
	default:
		return "", fmt.Errorf("unsupported platform for bundled ffmpeg: %s/%s", goos, goarch)
	}
}

func downloadAndExtract(assetName, installDir string) error {
	url := fmt.Sprintf("%s/v%s/%s", ffmpegReleaseBaseURL, ffmpegReleaseVersion, assetName)
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download ffmpeg bundle: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "bilingo-ffmpeg-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	archivePath := tmp.Name()
	defer func() { _ = os.Remove(archivePath) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := extractArchive(archivePath, installDir); err != nil {
		return fmt.Errorf("extract %s: %w", assetName, err)
	}
	return nil
}

// extractArchive copies the ffmpeg and ffprobe entries of a release zip
// into installDir, ignoring every other entry.
func extractArchive(archivePath, installDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open ffmpeg archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	found := map[string]bool{}
	for _, file := range zr.File {
		name := strings.TrimSuffix(strings.ToLower(filepath.Base(file.Name)), ".exe")
		if name != "ffmpeg" && name != "ffprobe" {
			continue
		}
		if err := extractZipFile(file, filepath.Join(installDir, name+executableSuffix())); err != nil {
			return err
		}
		found[name] = true
	}
	if !found["ffmpeg"] || !found["ffprobe"] {
		return fmt.Errorf("ffmpeg archive missing required binaries")
	}
	return nil
}

func extractZipFile(file *zip.File, dest string) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open ffmpeg archive entry: %w", err)
	}
	defer func() { _ = reader.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create ffmpeg binary: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("write ffmpeg binary: %w", err)
	}
	return nil
}

func binariesExist(paths BinaryPaths) bool {
	return fileExists(paths.FFmpeg) && fileExists(paths.FFprobe)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
