package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrej220/octahe/internal/deploy"
	"github.com/andrej220/octahe/internal/lg"
	"github.com/andrej220/octahe/internal/report"
	"github.com/andrej220/octahe/internal/target"
	"github.com/andrej220/octahe/pkg/config"
)

const SERVICENAME = "octahe"

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

type cliOptions struct {
	planPath   string
	reportPath string
	strict     bool
	opts       config.Options
	logCfg     *lg.Config
}

func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet(SERVICENAME, flag.ContinueOnError)
	fs.SetOutput(stderr)

	cli := &cliOptions{opts: config.DefaultOptions()}
	cli.logCfg = lg.RegisterFlags(fs, SERVICENAME)
	fs.StringVar(&cli.planPath, "plan", "", "path to the plan file (yaml or toml)")
	fs.StringVar(&cli.reportPath, "report", "", "write a JSON run report to this file")
	fs.BoolVar(&cli.strict, "strict", false, "exit non-zero when any step is degraded")
	fs.IntVar(&cli.opts.ConnectionQuota, "quota", config.DefaultConnectionQuota, "max simultaneous target operations per step")
	fs.Var(envFlag(cli.opts.Env), "env", "KEY=VALUE exported before every command (repeatable)")
	fs.StringVar(&cli.opts.SSHKeyPath, "ssh-key", "", "private key used for ssh targets")
	fs.StringVar(&cli.opts.SSHPassword, "ssh-password", "", "password used for ssh targets")
	fs.StringVar(&cli.opts.SSHHostKey, "ssh-host-key", "", "pinned host key in authorized_keys format")
	fs.DurationVar(&cli.opts.SSHTimeout, "ssh-timeout", cli.opts.SSHTimeout, "ssh connect timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cli.planPath == "" && fs.NArg() > 0 {
		cli.planPath = fs.Arg(0)
	}
	if cli.planPath == "" {
		return nil, errors.New("a plan file is required")
	}
	return cli, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		return exitConfig
	}

	logger := lg.New(cli.logCfg)
	defer logger.Sync()

	doc, err := config.LoadPlan(cli.planPath)
	if err != nil {
		logger.Error("Loading plan failed", lg.String("plan", cli.planPath), lg.Err(err))
		return exitConfig
	}
	plan, err := buildPlan(doc)
	if err != nil {
		logger.Error("Building plan failed", lg.Err(err))
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = lg.Attach(ctx, logger)

	factory := target.NewConnFactory(cli.opts.MergeEnv(doc.Env), cli.opts.SSH())
	orch := deploy.NewOrchestrator(plan, deploy.Options{
		ConnectionQuota: cli.opts.ConnectionQuota,
		BaseDir:         doc.BaseDir,
	}, factory, stdout)
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Warn("Closing connections failed", lg.Err(err))
		}
	}()

	logger.Debug("Plan loaded", lg.String("plan", cli.planPath), lg.String("base_dir", doc.BaseDir))

	summary, err := orch.Run(ctx)
	if summary == nil {
		logger.Error("Deployment aborted", lg.Err(err))
		return exitConfig
	}
	if err != nil {
		logger.Warn("Deployment interrupted", lg.Err(err))
	}

	for _, t := range summary.FailedTargets() {
		fmt.Fprintf(stderr, "target %s failed at step %d: %s\n", t.Name, t.FailedStep, t.Diagnostic)
	}

	if cli.reportPath != "" {
		if err := report.Write(summary, cli.reportPath); err != nil {
			logger.Error("Writing report failed", lg.String("report", cli.reportPath), lg.Err(err))
		}
	}

	return exitCode(summary, cli.strict)
}

func exitCode(summary *deploy.Summary, strict bool) int {
	switch {
	case summary.Cancelled, summary.HasFailed():
		return exitFailed
	case strict && summary.HasDegraded():
		return exitFailed
	default:
		return exitOK
	}
}
