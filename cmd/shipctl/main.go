package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/palletdock/internal/apiclient"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/reconcile"
	"github.com/palletdock/internal/storage"
)

type options struct {
	baseURL      string
	username     string
	password     string
	token        string
	locale       string
	planPath     string
	outDir       string
	labelBaseURL string
	stepTimeout  time.Duration
	dryRun       bool
	verbose      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "base-url", envOr("PD_SHIPCTL_BASE_URL", "http://127.0.0.1:8080"), "托盘服务地址")
	flag.StringVar(&opts.username, "username", os.Getenv("PD_SHIPCTL_USERNAME"), "操作员账号")
	flag.StringVar(&opts.password, "password", "", "操作员密码（也可通过 PD_SHIPCTL_PASSWORD 传入）")
	flag.StringVar(&opts.token, "token", os.Getenv("PD_SHIPCTL_TOKEN"), "已签发的 Bearer Token，设置后不再登录")
	flag.StringVar(&opts.locale, "locale", "en-US", "响应语言")
	flag.StringVar(&opts.planPath, "plan", "", "暂存变更 YAML 文件")
	flag.StringVar(&opts.outDir, "out", "artifacts", "标签与发运清单输出目录")
	flag.StringVar(&opts.labelBaseURL, "label-base-url", "", "标签二维码链接前缀")
	flag.DurationVar(&opts.stepTimeout, "step-timeout", 15*time.Second, "单次远程调用超时")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "只打印将要执行的操作")
	flag.BoolVar(&opts.verbose, "verbose", false, "输出调试日志")
	flag.Parse()

	if opts.password == "" {
		opts.password = os.Getenv("PD_SHIPCTL_PASSWORD")
	}
	if opts.verbose {
		logger.Init("debug", logger.Options{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if strings.TrimSpace(opts.planPath) == "" {
		return errors.New("-plan is required")
	}
	planFile, err := loadPlanFile(opts.planPath)
	if err != nil {
		return err
	}

	client, err := apiclient.New(apiclient.Config{BaseURL: opts.baseURL, Token: opts.token, Locale: opts.locale})
	if err != nil {
		return err
	}
	if opts.token == "" {
		if opts.username == "" || opts.password == "" {
			return errors.New("either -token or -username with a password is required")
		}
		if _, err := client.Login(ctx, opts.username, opts.password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	}

	store, err := storage.NewLocalStore(opts.outDir)
	if err != nil {
		return err
	}
	sink, err := reconcile.NewStoreSink(store, opts.labelBaseURL)
	if err != nil {
		return err
	}
	session, err := reconcile.NewSession(client,
		reconcile.WithArtifactSink(sink),
		reconcile.WithStepTimeout(opts.stepTimeout),
	)
	if err != nil {
		return err
	}
	if err := session.Load(ctx); err != nil {
		return fmt.Errorf("load open pallets failed: %w", err)
	}
	if err := planFile.Stage(session); err != nil {
		return err
	}

	plan := session.Plan()
	printPlan(plan)
	if plan.Empty() {
		fmt.Println("No changes")
		return nil
	}
	if opts.dryRun {
		return nil
	}

	result, err := session.Submit(ctx)
	if result != nil {
		fmt.Println(result.Summary())
		for _, key := range result.Artifacts {
			fmt.Printf("  artifact %s\n", key)
		}
		for _, artifactErr := range result.ArtifactErrors {
			fmt.Printf("  artifact failed: %v\n", artifactErr)
		}
		printMissing(result.MissingDOA)
		if result.RefreshErr != nil {
			fmt.Printf("Refresh failed, local view may be stale: %v\n", result.RefreshErr)
		}
	}
	return err
}

func printPlan(plan reconcile.Plan) {
	for i, op := range plan.Operations() {
		switch op.Kind {
		case reconcile.OpMove:
			slot := "first free"
			if op.ToSlot != nil {
				slot = fmt.Sprintf("slot %d", *op.ToSlot)
			}
			fmt.Printf("%2d. move    %s %s -> %s (%s)\n", i+1, op.ServiceTag, op.FromPallet, op.ToPallet, slot)
		case reconcile.OpSetDOA:
			fmt.Printf("%2d. doa     %s = %s\n", i+1, op.ServiceTag, op.DOANumber)
		case reconcile.OpSetLock:
			fmt.Printf("%2d. lock    %s locked=%t\n", i+1, op.PalletNumber, op.Locked)
		default:
			fmt.Printf("%2d. %-7s %s\n", i+1, op.Kind, op.PalletNumber)
		}
	}
}

func printMissing(missing map[string][]string) {
	numbers := make([]string, 0, len(missing))
	for number := range missing {
		numbers = append(numbers, number)
	}
	sort.Strings(numbers)
	for _, number := range numbers {
		fmt.Printf("  %s missing DOA: %s\n", number, strings.Join(missing[number], ", "))
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
