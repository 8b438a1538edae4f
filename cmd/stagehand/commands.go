package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/config"
	"github.com/dshills/stagehand/internal/controller"
	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/notify"
)

var errUsage = errors.New("usage")

type env struct {
	ctl    *controller.Controller
	cfg    *config.Config
	out    io.Writer
	logger zerolog.Logger
}

type command struct {
	args  string
	help  string
	watch bool
	run   func(ctx context.Context, e *env, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"status":        {args: "[-ignored] [-amend]", help: "List staged and unstaged changes", run: cmdStatus},
		"diff":          {args: "[-staged|-amend] <path>", help: "Show the diff of one file", run: cmdDiff},
		"show":          {args: "<commit> [path]", help: "List files changed by a commit, or one file's diff", run: cmdShow},
		"stage":         {args: "[-all] <path>...", help: "Stage files", run: pathCommand(stageAll, (*controller.Controller).Stage)},
		"unstage":       {args: "[-all] <path>...", help: "Unstage files", run: pathCommand(unstageAll, (*controller.Controller).Unstage)},
		"revert":        {args: "<path>...", help: "Discard working tree changes", run: pathCommand(nil, (*controller.Controller).Revert)},
		"amend-stage":   {args: "<path>...", help: "Stage files for an amended commit", run: pathCommand(nil, (*controller.Controller).AmendStage)},
		"amend-unstage": {args: "<path>...", help: "Unstage files from an amended commit", run: pathCommand(nil, (*controller.Controller).AmendUnstage)},
		"stage-hunk":    {args: "<path> <n>", help: "Stage the n-th unstaged hunk (from 1)", run: hunkCommand(true)},
		"unstage-hunk":  {args: "<path> <n>", help: "Unstage the n-th staged hunk (from 1)", run: hunkCommand(false)},
		"branch":        {args: "", help: "Show the current branch and local branches", run: cmdBranch},
		"watch":         {args: "[-for duration]", help: "Print repository events until interrupted", watch: true, run: cmdWatch},
	}
}

func cmdStatus(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ignored := fs.Bool("ignored", e.cfg.Status.ShowIgnored, "Include ignored files")
	amend := fs.Bool("amend", false, "Compare the index with HEAD's parent")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}

	var staged []git.FileChange
	var err error
	if *amend {
		staged, err = e.ctl.AmendingStagedChanges(ctx)
	} else {
		staged, err = e.ctl.StagedChanges(ctx)
	}
	if err != nil {
		return err
	}
	unstaged, err := e.ctl.UnstagedChanges(ctx, controller.UnstagedOptions{
		ShowIgnored:      *ignored,
		RecurseUntracked: e.cfg.Status.RecurseUntracked,
		UseCache:         true,
	})
	if err != nil {
		return err
	}

	branch, err := e.ctl.CurrentBranch(ctx)
	if err != nil {
		e.logger.Debug().Err(err).Msg("current branch")
	}
	if branch == "" {
		branch = "(detached)"
	}
	fmt.Fprintf(e.out, "On branch %s\n", branch)
	printChanges(e.out, "Staged", staged)
	printChanges(e.out, "Unstaged", unstaged)
	return nil
}

func printChanges(w io.Writer, title string, changes []git.FileChange) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(changes) == 0 {
		fmt.Fprintf(w, "  (none)\n")
		return
	}
	for _, c := range changes {
		fmt.Fprintf(w, "  %-10s %s\n", c.Status, c.Path)
	}
}

func cmdDiff(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	staged := fs.Bool("staged", false, "Compare HEAD with the index")
	amend := fs.Bool("amend", false, "Compare HEAD's parent with the index")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	path := fs.Arg(0)

	var d *git.FileDiff
	var err error
	switch {
	case *amend:
		d, err = e.ctl.AmendingStagedDiff(ctx, path)
	case *staged:
		d, err = e.ctl.StagedDiff(ctx, path)
	default:
		d, err = e.ctl.UnstagedDiff(ctx, path)
	}
	if err != nil {
		return err
	}
	printFileDiff(e.out, d)
	return nil
}

func printFileDiff(w io.Writer, d *git.FileDiff) {
	fmt.Fprintf(w, "%s %s (+%d -%d)\n", d.Status, d.Path(), d.Stats.Additions, d.Stats.Deletions)
	if d.IsBinary {
		fmt.Fprintf(w, "Binary files differ\n")
		return
	}
	for _, h := range d.Hunks {
		fmt.Fprint(w, h.String())
	}
}

func cmdShow(ctx context.Context, e *env, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	sha := args[0]
	if sha != git.StagingSHA {
		c, err := e.ctl.Backend().ResolveCommit(sha)
		if err != nil {
			return err
		}
		sha = c.ID
	}

	if len(args) == 2 {
		d, err := e.ctl.CommitFileDiff(ctx, sha, "", args[1])
		if err != nil {
			return err
		}
		printFileDiff(e.out, d)
		return nil
	}
	changes, err := e.ctl.ChangesFor(ctx, sha, "")
	if err != nil {
		return err
	}
	for _, c := range changes {
		fmt.Fprintf(e.out, "%-10s %s\n", c.Status, c.Path)
	}
	return nil
}

type pathOp func(c *controller.Controller, ctx context.Context, path string) error

func stageAll(ctx context.Context, c *controller.Controller) error   { return c.StageAll(ctx) }
func unstageAll(ctx context.Context, c *controller.Controller) error { return c.UnstageAll(ctx) }

// pathCommand applies op to every path argument. all, when set, backs the
// -all flag.
func pathCommand(all func(context.Context, *controller.Controller) error, op pathOp) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		fs := flag.NewFlagSet("paths", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		useAll := fs.Bool("all", false, "Apply to every change")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		if *useAll {
			if all == nil || fs.NArg() != 0 {
				return errUsage
			}
			return all(ctx, e.ctl)
		}
		if fs.NArg() == 0 {
			return errUsage
		}
		for _, p := range fs.Args() {
			if err := op(e.ctl, ctx, p); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
		return nil
	}
}

func hunkCommand(stage bool) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		if len(args) != 2 {
			return errUsage
		}
		path := args[0]
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return errUsage
		}

		var d *git.FileDiff
		if stage {
			d, err = e.ctl.UnstagedDiff(ctx, path)
		} else {
			d, err = e.ctl.StagedDiff(ctx, path)
		}
		if err != nil {
			return err
		}
		if n > len(d.Hunks) {
			return fmt.Errorf("%s has %d hunks", path, len(d.Hunks))
		}
		return e.ctl.ApplyHunk(ctx, path, d.Hunks[n-1], stage)
	}
}

func cmdBranch(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	current, err := e.ctl.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	branches, err := e.ctl.Branches(ctx)
	if err != nil {
		return err
	}
	for _, b := range branches {
		marker := " "
		if b.Name == current {
			marker = "*"
		}
		fmt.Fprintf(e.out, "%s %s %s\n", marker, b.Name, shortID(b.CommitID))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

var watchTopics = []string{
	notify.TopicConfigChanged,
	notify.TopicHeadChanged,
	notify.TopicIndexChanged,
	notify.TopicRefsChanged,
	notify.TopicRefLogChanged,
	notify.TopicStashChanged,
	notify.TopicWorkspaceChanged,
	notify.TopicBranchChanged,
}

func cmdWatch(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Duration("for", 0, "Stop after this long")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}
	if *limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *limit)
		defer cancel()
	}

	lines := make(chan string, 64)
	for _, topic := range watchTopics {
		id := e.ctl.Subscribe(topic, func(ev notify.Event) {
			select {
			case lines <- formatEvent(ev):
			case <-ctx.Done():
			}
		})
		defer e.ctl.Unsubscribe(id)
	}

	fmt.Fprintf(e.out, "watching %s\n", e.ctl.Workdir())
	for {
		select {
		case line := <-lines:
			fmt.Fprintln(e.out, line)
		case <-ctx.Done():
			return nil
		}
	}
}

func formatEvent(ev notify.Event) string {
	line := ev.Time.Format(time.TimeOnly) + " " + ev.Topic
	switch {
	case len(ev.Paths) > 0:
		line += " " + strings.Join(ev.Paths, " ")
	case ev.Branch != "":
		line += " " + ev.Branch
	}
	return line
}
