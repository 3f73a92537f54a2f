package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// ErrUnknownCommand is returned by Run for an unsupported subcommand.
var ErrUnknownCommand = errors.New("unknown migrate command")

// CLI 把 nodeflow migrate 子命令映射到 Migrator
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput sets the output writer for CLI messages
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// Run dispatches a migrate subcommand; no arguments means status.
//
//	up | down | version | status | info | goto <version> | force <version>
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.RunStatus(ctx)
	}
	switch cmd := args[0]; cmd {
	case "up":
		return c.step(ctx, "Applying workflow schema migrations...", "migration failed", c.migrator.Up)
	case "down":
		return c.step(ctx, "Rolling back last workflow schema migration...", "rollback failed", c.migrator.Down)
	case "version":
		return c.RunVersion(ctx)
	case "status":
		return c.RunStatus(ctx)
	case "info":
		return c.RunInfo(ctx)
	case "goto", "force":
		if len(args) != 2 {
			return fmt.Errorf("%s requires a version argument", cmd)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version %q", args[1])
		}
		if cmd == "goto" {
			return c.step(ctx, fmt.Sprintf("Migrating workflow schema to version %d...", v), "migration failed",
				func(ctx context.Context) error { return c.migrator.Goto(ctx, uint(v)) })
		}
		return c.step(ctx, fmt.Sprintf("Forcing workflow schema version to %d...", v), "force failed",
			func(ctx context.Context) error { return c.migrator.Force(ctx, v) })
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

// step 执行一次迁移操作并打印之后的版本
func (c *CLI) step(ctx context.Context, banner, failure string, fn func(context.Context) error) error {
	fmt.Fprintln(c.output, banner)
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", failure, err)
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Done. Current version: %d\n", info.CurrentVersion)
	return nil
}

// RunVersion shows the current migration version
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	fmt.Fprintf(c.output, "Current version: %d%s\n", version, suffix)
	return nil
}

// RunStatus 列出每个迁移文件的应用状态
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		status := "Pending"
		switch {
		case s.Dirty:
			status = "Dirty"
		case s.Applied:
			status = "Applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

// RunInfo shows detailed migration information
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "Workflow schema:")
	fmt.Fprintf(w, "  Current Version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(w, "  Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(w, "  Total Migrations:\t%d\n", info.TotalMigrations)
	fmt.Fprintf(w, "  Applied Migrations:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(w, "  Pending Migrations:\t%d\n", info.PendingMigrations)
	return w.Flush()
}
