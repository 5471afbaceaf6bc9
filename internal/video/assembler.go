// Package video assembles a captured image sequence into a single video
// file by driving an external ffmpeg encoder.
package video

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/LapseGo/internal/debug"
)

// DefaultOutputName is used when the caller passes an empty output name.
const DefaultOutputName = "timelapse.mp4"

// EncodingError reports a failed or impossible encode. It is fatal to
// the assembly step only; acquisition results are untouched.
type EncodingError struct {
	Reason string
	Output string // encoder output excerpt, if any
	Err    error
}

func (e *EncodingError) Error() string {
	msg := "encoding failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += " (output: " + e.Output + ")"
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Assembler encodes image sequences with ffmpeg.
type Assembler struct {
	// Quality 1 (low) to 5 (high), mapped onto the encoder's CRF scale.
	Quality int
}

// NewAssembler creates an assembler with the given quality (1-5).
func NewAssembler(quality int) *Assembler {
	return &Assembler{Quality: quality}
}

// Assemble encodes every .jpg in dir, in lexicographic filename order
// (the capture naming scheme makes that chronological), into one video
// written next to the images. Returns the output path. The encode is not
// retried on failure.
func (a *Assembler) Assemble(ctx context.Context, dir string, frameRate int, outputName string) (string, error) {
	if frameRate <= 0 {
		return "", &EncodingError{Reason: fmt.Sprintf("frame rate must be > 0, got %d", frameRate)}
	}
	if outputName == "" {
		outputName = DefaultOutputName
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return "", &EncodingError{Reason: "bad image pattern", Err: err}
	}
	if len(matches) == 0 {
		return "", &EncodingError{Reason: fmt.Sprintf("no images found in %s", dir)}
	}

	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", &EncodingError{Reason: "ffmpeg not found on PATH", Err: err}
	}

	outputPath := filepath.Join(dir, outputName)
	args := encodeArgs(dir, frameRate, a.crf(), outputPath)
	debug.Encode(dir, outputPath)
	debug.Command(ffmpeg, args)

	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &EncodingError{
			Reason: "encoder exited with error",
			Output: excerpt(output),
			Err:    err,
		}
	}

	debug.Info("Video written: %s (%d frames at %d fps)", outputPath, len(matches), frameRate)
	return outputPath, nil
}

// Probe checks that ffmpeg is installed and runs, with a bounded wait.
func (a *Assembler) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", "-version")
	if err := cmd.Run(); err != nil {
		return &EncodingError{Reason: "ffmpeg not available", Err: err}
	}
	return nil
}

// encodeArgs builds the ffmpeg argument list for one encode.
func encodeArgs(dir string, frameRate int, crf string, outputPath string) []string {
	return []string{
		"-y",
		"-framerate", strconv.Itoa(frameRate),
		"-pattern_type", "glob",
		"-i", filepath.Join(dir, "*.jpg"),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", crf,
		"-pix_fmt", "yuv420p",
		outputPath,
	}
}

// crf maps quality 1 (low) -> CRF 28.0 down to 5 (high) -> CRF 18.0.
func (a *Assembler) crf() string {
	crf := 28.0 - float64(a.Quality-1)*2.5
	if crf < 18 {
		crf = 18
	}
	if crf > 28 {
		crf = 28
	}
	return strconv.FormatFloat(crf, 'f', 1, 64)
}

// excerpt trims encoder output for inclusion in error messages.
func excerpt(output []byte) string {
	s := strings.TrimSpace(string(output))
	const max = 300
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}
