package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/franz/music-pipeline/internal/util"
)

// DefaultFpcalc is the Chromaprint command-line tool.
const DefaultFpcalc = "fpcalc"

// Fingerprint is a Chromaprint result.
type Fingerprint struct {
	DurationSec int
	Value       string
}

// fpcalcOutput is what `fpcalc -json` prints.
type fpcalcOutput struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

// Fpcalc runs the fpcalc binary.
type Fpcalc struct {
	Binary  string
	Timeout time.Duration
}

// NewFpcalc returns an analyzer for binary, bounded by timeout per file.
func NewFpcalc(binary string, timeout time.Duration) *Fpcalc {
	if binary == "" {
		binary = DefaultFpcalc
	}
	return &Fpcalc{Binary: binary, Timeout: timeout}
}

// Analyze fingerprints one file. Every failure, including a missing binary,
// is returned as an ordinary error; callers decide whether to retry.
func (f *Fpcalc) Analyze(ctx context.Context, path string) (*Fingerprint, error) {
	bin, err := exec.LookPath(f.Binary)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Binary, util.ErrToolMissing)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-json", path)
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fpcalc timed out on %s: %w", path, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("fpcalc failed on %s: %s", path, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("fpcalc execution failed: %w", err)
	}

	return parseFpcalc(output)
}

func parseFpcalc(output []byte) (*Fingerprint, error) {
	var out fpcalcOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse fpcalc output: %w", err)
	}
	if out.Fingerprint == "" {
		return nil, fmt.Errorf("fpcalc returned an empty fingerprint")
	}
	return &Fingerprint{
		DurationSec: int(math.Round(out.Duration)),
		Value:       out.Fingerprint,
	}, nil
}
