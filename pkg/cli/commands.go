package cli

import (
	"context"

	"github.com/spf13/cobra"

	"CPEStat/internal/cvedb"
)

func newDownloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "download",
		Short:   "下载 CPE 字典与 CVE 数据源",
		Example: "cpestat download --years 2020-2022 --refresh",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *cvedb.Pipeline) error {
				return p.Download(ctx)
			})
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "put",
		Aliases: []string{"ingest"},
		Short:   "解析字典与 CVE 数据源并写入数据库",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *cvedb.Pipeline) error {
				return p.Put(ctx)
			})
		},
	}
}

func newStatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "重建去重视图，导出分组统计报表",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *cvedb.Pipeline) error {
				report, err := p.Stat(ctx)
				if err != nil {
					return err
				}
				return NewOutputFormatter(a.cfg.Format, a.cfg.Top).PrintStat(cmd.OutOrStdout(), report)
			})
		},
	}
	addReportFlags(cmd)
	return cmd
}

func newAllCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "依次执行 download、put、stat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *cvedb.Pipeline) error {
				report, err := p.All(ctx)
				if err != nil {
					return err
				}
				return NewOutputFormatter(a.cfg.Format, a.cfg.Top).PrintStat(cmd.OutOrStdout(), report)
			})
		},
	}
	addReportFlags(cmd)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "显示最近的运行记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withPipeline(cmd.Context(), func(ctx context.Context, p *cvedb.Pipeline) error {
				history, err := p.History(ctx, limit)
				if err != nil {
					return err
				}
				return NewOutputFormatter(a.cfg.Format, a.cfg.Top).PrintHistory(cmd.OutOrStdout(), history)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "显示条数")
	addReportFlags(cmd)
	return cmd
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().Int("top", 10, "每个分组在终端显示的条数")
	cmd.Flags().String("format", "text", "终端输出格式 (text, json)")
}
