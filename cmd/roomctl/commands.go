package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gookit/color"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/storage"
)

var errUsage = errors.New("usage")

var (
	colorOK      = color.Style{color.FgGreen, color.OpBold}
	colorWarn    = color.Style{color.FgYellow}
	colorFail    = color.Style{color.FgRed, color.OpBold}
	colorSubtle  = color.Style{color.FgGray}
	colorHeading = color.Style{color.FgCyan, color.OpBold}
)

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: roomctl <command> [arguments]

commands:
  sessions [-active]                   list sessions
  hint <team-id> <message>             send a hint to a team
  extend <team-id> <minutes>           add time to a team's game
  difficulty <team-id> easier|harder   move a team one difficulty step
  broadcast <message>                  message every team still playing
  reset-content <theme>                drop the custom text of a theme`)
}

type cli struct {
	svc *admin.Service
	out io.Writer
}

func newCLI(svc *admin.Service, out io.Writer) *cli {
	return &cli{svc: svc, out: out}
}

func (c *cli) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage(c.out)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "sessions":
		return c.sessions(ctx, rest)
	case "hint":
		return c.hint(ctx, rest)
	case "extend":
		return c.extend(ctx, rest)
	case "difficulty":
		return c.difficulty(ctx, rest)
	case "broadcast":
		return c.broadcast(ctx, rest)
	case "reset-content":
		return c.resetContent(ctx, rest)
	case "help", "-h", "--help":
		usage(c.out)
		return nil
	}
	usage(c.out)
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (c *cli) sessions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(c.out)
	active := fs.Bool("active", false, "only list games still running")
	if err := fs.Parse(args); err != nil {
		return err
	}

	recs, src := c.svc.Sessions(ctx, *active)
	if len(recs) == 0 {
		fmt.Fprintln(c.out, colorSubtle.Sprint("no sessions"))
		return nil
	}

	lines, err := sessionTable(recs)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorHeading.Sprint(lines[0]))
	for i, rec := range recs {
		st := rec.Status()
		fmt.Fprintln(c.out, strings.TrimSuffix(lines[i+1], string(st))+statusText(st))
	}
	if src != storage.SourcePrimary {
		fmt.Fprintln(c.out, colorWarn.Sprintf("read from %s store", src))
	}
	return nil
}

// sessionTable lays the sessions out as plain aligned lines, header first.
// Status is the last column so it can be coloured without shifting the rest.
func sessionTable(recs []storage.SessionRecord) ([]string, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TEAM ID\tTEAM\tTHEME\tDIFFICULTY\tSTAGE\tTIME\tHINTS\tSTATUS")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%d\t%s\n",
			rec.Key(), rec.TeamName, rec.Theme, rec.Difficulty,
			rec.CurrentStage, rec.TotalStages, clockText(rec.TimeRemaining), rec.HintsAvailable, rec.Status())
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n"), nil
}

func (c *cli) hint(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: hint <team-id> <message>", errUsage)
	}
	st, err := c.svc.SendHint(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	c.done("hint sent", st)
	return nil
}

func (c *cli) extend(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: extend <team-id> <minutes>", errUsage)
	}
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: minutes must be a number", errUsage)
	}
	ch, err := c.svc.ExtendTime(ctx, args[0], minutes)
	if err != nil {
		return err
	}
	c.done(fmt.Sprintf("%s now has %s left", ch.Team.TeamName, clockText(ch.Team.TimeRemaining)), ch.Sync)
	return nil
}

func (c *cli) difficulty(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: difficulty <team-id> easier|harder", errUsage)
	}
	dir, err := escaperoom.ParseDirection(args[1])
	if err != nil {
		return err
	}
	ch, err := c.svc.AdjustDifficulty(ctx, args[0], dir)
	if err != nil {
		return err
	}
	if !ch.Changed {
		fmt.Fprintln(c.out, colorWarn.Sprintf("%s is already on %s", ch.Team.TeamName, ch.Team.Difficulty))
		return nil
	}
	msg := fmt.Sprintf("%s is now on %s", ch.Team.TeamName, ch.Team.Difficulty)
	if ch.HintsGranted > 0 {
		msg += fmt.Sprintf(" (+%d hints)", ch.HintsGranted)
	}
	c.done(msg, ch.Sync)
	return nil
}

func (c *cli) broadcast(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: broadcast <message>", errUsage)
	}
	n, st, err := c.svc.BroadcastMessage(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	c.done(fmt.Sprintf("sent to %d teams", n), st)
	return nil
}

func (c *cli) resetContent(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: reset-content <theme>", errUsage)
	}
	theme := escaperoom.Theme(args[0])
	if !escaperoom.Builtin().Has(theme) {
		return fmt.Errorf("unknown theme %q", args[0])
	}
	st, err := c.svc.ResetContent(ctx, theme)
	if err != nil {
		return err
	}
	c.done(fmt.Sprintf("%s restored to built-in text", theme), st)
	return nil
}

func (c *cli) done(msg string, st storage.SyncStatus) {
	switch st {
	case storage.SyncSynced:
		fmt.Fprintln(c.out, colorOK.Sprint("✓ ")+msg)
	case storage.SyncFailed:
		fmt.Fprintln(c.out, colorFail.Sprint("✗ ")+msg+colorFail.Sprint(" (not saved)"))
	default:
		fmt.Fprintln(c.out, colorWarn.Sprint("! ")+msg+colorWarn.Sprintf(" (%s)", st))
	}
}

func statusText(s escaperoom.Status) string {
	switch s {
	case escaperoom.StatusActive:
		return colorOK.Sprint(s)
	case escaperoom.StatusCompleted:
		return colorHeading.Sprint(s)
	}
	return colorSubtle.Sprint(s)
}

func clockText(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
