// Package mysql runs mysqldump for a single database
package mysql

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/supporttools/sqlsweep/pkg/config"
)

// ToolError reports a dump tool that could not start or exited non-zero
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed (exit %d): %v", e.Tool, e.ExitCode, e.Err)
	if e.Stderr != "" {
		msg += " - " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Provider dumps databases with mysqldump
type Provider struct {
	Binary   string
	Host     string
	Port     int
	User     string
	Password string
}

// NewProvider creates a Provider for the configured server
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		Binary:   cfg.MysqldumpPath,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.Username,
		Password: cfg.Password,
	}
}

// Args returns the mysqldump arguments for dbName
func (p *Provider) Args(dbName string) []string {
	args := []string{
		"--opt",
		"-h", p.Host,
		"-P", strconv.Itoa(p.Port),
		"-u", p.User,
	}

	if p.Password != "" {
		args = append(args, "-p"+p.Password)
	}

	return append(args, dbName)
}

// BackupCommand returns the command line with the password masked, for logging
func (p *Provider) BackupCommand(dbName string) string {
	args := p.Args(dbName)
	for i, arg := range args {
		if p.Password != "" && arg == "-p"+p.Password {
			args[i] = "-p<masked>"
		}
	}
	return p.Binary + " " + strings.Join(args, " ")
}

// Backup streams the dump of dbName into output. Cancelling ctx kills the tool.
func (p *Provider) Backup(ctx context.Context, dbName string, output io.Writer) error {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, p.Binary, p.Args(dbName)...)
	cmd.Stdout = output
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ToolError{
			Tool:     p.Binary,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	return nil
}
