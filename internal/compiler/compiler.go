package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/runner"
)

const (
	streamBudget = 500
	fontFileName = "cvfont.ttf"
)

// ErrNoArtifact means the compiler exited cleanly without producing a PDF.
var ErrNoArtifact = errors.New("PDF file was not generated")

// Config holds compiler invoker settings
type Config struct {
	Binary    string
	EntryFile string
	Timeout   time.Duration
	WorkDir   string // parent of the per-job temp dirs; empty uses os.TempDir
}

// Input is one compilation request.
type Input struct {
	JobID    string
	Source   string
	FontPath string
}

// Result is a produced artifact and its diagnostics.
type Result struct {
	PDF      []byte
	Logs     string
	Duration time.Duration
}

// Compiler runs the LaTeX engine in a disposable directory.
type Compiler struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

// New creates a Compiler
func New(cfg Config, r runner.Runner, logger *slog.Logger) *Compiler {
	if cfg.Binary == "" {
		cfg.Binary = "tectonic"
	}
	if cfg.EntryFile == "" {
		cfg.EntryFile = "cv.tex"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Compiler{cfg: cfg, runner: r, logger: logger}
}

// Compile produces a PDF from in.Source. Success needs a zero exit and the
// output file. Expiry of the compiler's own timeout is a compiler_timeout
// StageError; other failures are compiler_failure.
func (c *Compiler) Compile(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	logger := c.logger.With(slog.String("job_id", in.JobID))

	dir, err := os.MkdirTemp(c.cfg.WorkDir, "cv-"+in.JobID+"-*")
	if err != nil {
		return nil, c.fail(domain.ClassInternal, fmt.Errorf("create work dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove work dir", slog.String("dir", dir), slog.Any("error", err))
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, c.cfg.EntryFile), []byte(in.Source), 0o600); err != nil {
		return nil, c.fail(domain.ClassInternal, fmt.Errorf("write source: %w", err))
	}
	if in.FontPath != "" {
		if err := copyFile(in.FontPath, filepath.Join(dir, fontFileName)); err != nil {
			logger.Warn("Font not copied, compiling with fallback font",
				slog.String("font_path", in.FontPath),
				slog.Any("error", err),
			)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	logger.Info("Running compiler", slog.String("binary", c.cfg.Binary))
	stdout, stderr, runErr := c.runner.Run(runCtx, dir, c.cfg.Binary, c.cfg.EntryFile)

	if len(stdout) > 0 {
		logger.Debug("Compiler stdout", slog.String("stdout", domain.Truncate(string(stdout), streamBudget)))
	}
	if len(stderr) > 0 {
		logger.Warn("Compiler stderr", slog.String("stderr", domain.Truncate(string(stderr), streamBudget)))
	}

	if runErr != nil {
		switch {
		case ctx.Err() != nil:
			return nil, c.fail(domain.ClassInternal, fmt.Errorf("compile interrupted: %w", ctx.Err()))
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return nil, c.fail(domain.ClassCompilerTimeout,
				fmt.Errorf("compilation timed out (exceeded %s)", c.cfg.Timeout))
		default:
			return nil, c.fail(domain.ClassCompilerFailure, exitError(runErr, stdout, stderr))
		}
	}

	pdfPath := filepath.Join(dir, strings.TrimSuffix(c.cfg.EntryFile, filepath.Ext(c.cfg.EntryFile))+".pdf")
	pdf, err := os.ReadFile(pdfPath)
	if err != nil || len(pdf) == 0 {
		return nil, c.fail(domain.ClassCompilerFailure, ErrNoArtifact)
	}

	res := &Result{
		PDF:      pdf,
		Logs:     domain.Truncate(string(stdout), domain.MaxLogsLen),
		Duration: time.Since(start),
	}
	logger.Info("PDF generated",
		slog.Int("pdf_bytes", len(pdf)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (c *Compiler) fail(class domain.ErrorClass, err error) error {
	return domain.NewStageError(class, domain.StageCompile, err)
}

func exitError(err error, stdout, stderr []byte) error {
	msg := err.Error()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("compiler failed with code %d", exitErr.ExitCode())
	}
	switch {
	case len(stderr) > 0:
		msg += ": " + domain.Truncate(string(stderr), streamBudget)
	case len(stdout) > 0:
		msg += ": " + domain.Truncate(string(stdout), streamBudget)
	}
	return errors.New(msg)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
