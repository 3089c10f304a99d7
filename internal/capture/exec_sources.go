package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// The capture sources shell out to small platform helpers, the same way the
// OCR engine wraps the tesseract binary. Each helper is one configurable
// command; swapping platforms means swapping commands, not rebuilding.

// ExecFrameSource grabs frames by running a screenshot command per monitor.
// The command receives the monitor id and an output path as its last two
// arguments (e.g. `screencapture -x -D` on macOS, `grim -o` on Wayland).
type ExecFrameSource struct {
	Command  []string
	Displays []int
	TempDir  string
}

// NewExecFrameSource creates a frame source from a command line and the
// monitor ids to capture.
func NewExecFrameSource(command []string, displays []int, tempDir string) *ExecFrameSource {
	if len(displays) == 0 {
		displays = []int{1}
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &ExecFrameSource{Command: command, Displays: displays, TempDir: tempDir}
}

// Monitors returns the configured monitor ids.
func (s *ExecFrameSource) Monitors() []int {
	return s.Displays
}

// Capture runs the screenshot command and decodes the PNG it produced.
func (s *ExecFrameSource) Capture(ctx context.Context, monitorID int) (image.Image, error) {
	if len(s.Command) == 0 {
		return nil, fmt.Errorf("no screenshot command configured")
	}

	outPath := filepath.Join(s.TempDir, "frame-"+uuid.New().String()+".png")
	defer func() {
		_ = os.Remove(outPath)
	}()

	args := append(append([]string{}, s.Command[1:]...), strconv.Itoa(monitorID), outPath)
	cmd := exec.CommandContext(ctx, s.Command[0], args...)
	var errOut bytes.Buffer
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screenshot command failed: %w: %s", err, errOut.String())
	}

	f, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open captured frame: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode captured frame: %w", err)
	}
	return img, nil
}

// ExecForegroundSource reads foreground metadata from a helper that prints
// one JSON object on stdout.
type ExecForegroundSource struct {
	Command []string
}

// NewExecForegroundSource creates a foreground source from a command line.
func NewExecForegroundSource(command []string) *ExecForegroundSource {
	return &ExecForegroundSource{Command: command}
}

// foregroundJSON is the helper's output contract.
type foregroundJSON struct {
	MonitorID   int    `json:"monitor_id"`
	AppID       string `json:"app_id"`
	AppName     string `json:"app_name"`
	WindowTitle string `json:"window_title"`
	URL         string `json:"url"`
	PageTitle   string `json:"page_title"`
	DocPath     string `json:"doc_path"`
}

// Current runs the helper and parses its JSON output.
func (s *ExecForegroundSource) Current(ctx context.Context) (Foreground, error) {
	out, err := runHelper(ctx, s.Command)
	if err != nil {
		return Foreground{}, err
	}
	var fg foregroundJSON
	if err := json.Unmarshal(out, &fg); err != nil {
		return Foreground{}, fmt.Errorf("failed to decode foreground output: %w", err)
	}
	return Foreground{
		MonitorID:   fg.MonitorID,
		AppID:       fg.AppID,
		AppName:     fg.AppName,
		WindowTitle: fg.WindowTitle,
		URL:         fg.URL,
		PageTitle:   fg.PageTitle,
		DocPath:     fg.DocPath,
	}, nil
}

// ExecNowPlayingSource reads the current media item from a helper printing
// JSON, or nothing when idle.
type ExecNowPlayingSource struct {
	Command []string
}

// NewExecNowPlayingSource creates a now-playing source from a command line.
func NewExecNowPlayingSource(command []string) *ExecNowPlayingSource {
	return &ExecNowPlayingSource{Command: command}
}

// Current runs the helper. Empty output means nothing is playing.
func (s *ExecNowPlayingSource) Current(ctx context.Context) (NowPlaying, bool, error) {
	out, err := runHelper(ctx, s.Command)
	if err != nil {
		return NowPlaying{}, false, err
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return NowPlaying{}, false, nil
	}
	var np struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
		App    string `json:"app"`
	}
	if err := json.Unmarshal(out, &np); err != nil {
		return NowPlaying{}, false, fmt.Errorf("failed to decode now-playing output: %w", err)
	}
	if np.Title == "" {
		return NowPlaying{}, false, nil
	}
	return NowPlaying{Title: np.Title, Artist: np.Artist, App: np.App}, true, nil
}

// ExecLocationSource reads a best-effort location string from a helper.
type ExecLocationSource struct {
	Command []string
}

// NewExecLocationSource creates a location source from a command line.
func NewExecLocationSource(command []string) *ExecLocationSource {
	return &ExecLocationSource{Command: command}
}

// Current runs the helper. Empty output means no location is available.
func (s *ExecLocationSource) Current(ctx context.Context) (string, bool, error) {
	out, err := runHelper(ctx, s.Command)
	if err != nil {
		return "", false, err
	}
	text := strings.TrimSpace(string(out))
	return text, text != "", nil
}

func runHelper(ctx context.Context, command []string) ([]byte, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("no helper command configured")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("helper %s failed: %w: %s", command[0], err, errOut.String())
	}
	return out.Bytes(), nil
}
