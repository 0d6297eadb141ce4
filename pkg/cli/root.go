package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"CPEStat/internal/config"
	"CPEStat/internal/cvedb"
	"CPEStat/internal/utils"
)

var Version = "1.0.0"

// errUsage 未指定子命令
var errUsage = errors.New("必须指定子命令: download, put, stat 或 all")

// app 一次命令行调用共享的状态
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
}

// NewRootCmd 创建根命令及全部子命令
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "cpestat",
		Short:         "CPE 字典与 CVE 数据源统计工具",
		Long:          "下载 NVD 的 CPE 字典与 CVE 数据源，拆分 CPE 名称入库，对比两者覆盖情况并导出分组统计报表。",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return errors.Wrapf(errUsage, "未知的子命令 %q", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return errUsage
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Wrap(errUsage, err.Error())
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "配置文件路径 (默认: ./cpestat.yaml)")
	flags.String("data-dir", "./data", "数据目录")
	flags.String("db", "", "SQLite 数据库路径 (默认: <data-dir>/cpe.db)")
	flags.String("report-dir", "", "报表输出目录 (默认: <data-dir>)")
	flags.StringSlice("years", []string{"2022"}, "CVE 数据源年份，支持区间，如 2019-2022")
	flags.Int("workers", 4, "并发解析的数据源个数")
	flags.Int("max-retries", 3, "下载失败重试次数")
	flags.Duration("http-timeout", 0, "下载超时时间 (默认: 5m)")
	flags.Bool("refresh", false, "重新下载已存在的文件")
	flags.BoolP("verbose", "v", false, "显示调试日志")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd == rootCmd {
			return nil
		}
		// --top 与 --format 只有部分子命令有
		if err := bindFlags(a.v, cmd.Flags(), flagBindings); err != nil {
			return err
		}
		if err := config.Setup(a.v, a.configFile); err != nil {
			return err
		}
		cfg, err := config.Load(a.v)
		if err != nil {
			return err
		}
		a.cfg = cfg
		utils.SetVerbose(cfg.Verbose)
		return nil
	}

	rootCmd.AddCommand(newDownloadCmd(a))
	rootCmd.AddCommand(newPutCmd(a))
	rootCmd.AddCommand(newStatCmd(a))
	rootCmd.AddCommand(newAllCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))

	return rootCmd
}

// flagBindings 配置键到命令行参数名
var flagBindings = map[string]string{
	"data_dir":     "data-dir",
	"db_path":      "db",
	"report_dir":   "report-dir",
	"years":        "years",
	"workers":      "workers",
	"max_retries":  "max-retries",
	"http_timeout": "http-timeout",
	"refresh":      "refresh",
	"verbose":      "verbose",
	"top":          "top",
	"format":       "format",
}

// bindFlags 绑定命令行参数，未显式设置的参数沿用配置文件、环境变量与默认值。
// 当前命令没有的参数跳过。
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "绑定参数 --%s 失败", name)
		}
	}
	return nil
}

// Run 执行命令行并返回退出码。
// 没有子命令或子命令未知时打印用法并返回 1。
func Run(args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	utils.SetOutput(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintf(stderr, "错误: %v\n", err)
	if errors.Is(err, errUsage) {
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, cmd.UsageString())
	}
	return 1
}

// Execute 执行命令行，出错时以非零状态退出
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// withPipeline 打开数据库并构造流水线，结束时关闭数据库
func (a *app) withPipeline(ctx context.Context, fn func(ctx context.Context, p *cvedb.Pipeline) error) error {
	db, err := cvedb.NewCPEDatabase(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	downloader := cvedb.NewCPEDownloader(a.cfg.HTTPTimeout, a.cfg.MaxRetries)
	return fn(ctx, cvedb.NewPipeline(a.cfg, db, downloader))
}
