package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/coverhub/internal/cache"
	"github.com/any-hub/coverhub/internal/config"
	"github.com/any-hub/coverhub/internal/cover"
	"github.com/any-hub/coverhub/internal/logging"
	"github.com/any-hub/coverhub/internal/memcache"
	"github.com/any-hub/coverhub/internal/metrics"
	"github.com/any-hub/coverhub/internal/server"
	"github.com/any-hub/coverhub/internal/server/routes"
	"github.com/any-hub/coverhub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["kinds"] = config.KindNames(cfg.Kinds)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 共享缓存实例 → KindRegistry → Fiber server”顺序，
	// 所有实体类型共享同一份内存缓存、磁盘缓存与封面存储。
	deps, reg, err := buildDependencies(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}
	defer deps.Disk.Close()

	registry, err := server.NewKindRegistry(cfg, deps)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Kind 注册表失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["kinds"] = config.KindNames(cfg.Kinds)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_dir"] = cfg.Global.CacheDir()
	fields["cover_dir"] = cfg.Global.CoverDir()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, reg, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildDependencies 创建所有 Kind 共享的缓存实例与指标注册表。
func buildDependencies(cfg *config.Config, logger *logrus.Logger) (server.Dependencies, *prometheus.Registry, error) {
	fsys := afero.NewOsFs()
	g := cfg.Global

	disk, err := cache.NewDiskCache(fsys, g.CacheDir(), cache.Options{
		MaxBytes:   g.MaxDiskCacheSize,
		MaxEntries: g.MaxDiskEntries,
	}, logger)
	if err != nil {
		return server.Dependencies{}, nil, err
	}

	memory, err := memcache.New(g.MaxMemoryEntries, g.MaxMemoryCacheSize)
	if err != nil {
		disk.Close()
		return server.Dependencies{}, nil, err
	}

	covers, err := cover.NewStore(fsys, g.CoverDir())
	if err != nil {
		disk.Close()
		return server.Dependencies{}, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		disk.Close()
		return server.Dependencies{}, nil, err
	}

	return server.Dependencies{
		Client:  server.NewUpstreamClient(cfg),
		Disk:    disk,
		Memory:  memory,
		Covers:  covers,
		Logger:  logger,
		Metrics: recorder,
	}, reg, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("coverhub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 COVERHUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("COVERHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, registry *server.KindRegistry, reg *prometheus.Registry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Gatherer:   reg,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterKindRoutes(app, registry)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
