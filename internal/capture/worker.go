package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// WorkerCommand is the hidden CLI subcommand the server re-executes itself
// with to parse one file out-of-process.
const WorkerCommand = "parse-worker"

// ParseIsolated parses one capture file in a child process under a wall-clock
// timeout. The child is the server binary itself invoked with WorkerCommand;
// it writes a JSON Result on stdout and is killed if the deadline expires, so
// a pathological capture cannot hang or crash the server.
func ParseIsolated(ctx context.Context, path string, timeout time.Duration) (*Result, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating worker binary: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, WorkerCommand, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("parse worker exceeded %s and was killed", timeout)
		}
		return nil, fmt.Errorf("parse worker failed: %w: %s", err, stderr.String())
	}

	res := NewResult()
	if err := json.Unmarshal(stdout.Bytes(), res); err != nil {
		return nil, fmt.Errorf("decoding worker output: %w", err)
	}
	return res, nil
}

// WorkerMain is the child-process entry point behind WorkerCommand.
// It parses the file and writes the JSON result to stdout.
func WorkerMain(path string) error {
	res, err := ExtractFile(path)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(res)
}
