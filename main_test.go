package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/coverhub/internal/config"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("COVERHUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "Upstream") {
		t.Fatalf("错误输出应指出缺失字段: %s", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "coverhub") {
		t.Fatalf("version 输出应包含 coverhub 标识")
	}
}

func TestBuildDependenciesCreatesStorageLayout(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFile(t, fmt.Sprintf(`
StoragePath = "%s"

[[Kind]]
Name = "poster"
Upstream = "https://img.example.com/posters"
`, dir))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	deps, reg, err := buildDependencies(cfg, logger)
	if err != nil {
		t.Fatalf("初始化依赖失败: %v", err)
	}
	defer deps.Disk.Close()

	for _, sub := range []string{"cache", "covers"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Fatalf("应创建 %s 目录: %v", sub, err)
		}
	}
	if deps.Memory == nil || deps.Covers == nil || deps.Metrics == nil || deps.Client == nil {
		t.Fatalf("依赖未完整构建: %+v", deps)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("指标注册表不可用: %v", err)
	}
}
