package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-campaign-kit/pkg/workflow"
)

// montageOptions は recap / montage サブコマンドのフラグなのだ。
type montageOptions struct {
	Format       string
	IncludeRecap bool
}

var montOpts montageOptions

// recapCmd は、キャンペーンの要約を生成して保存するのだ。
var recapCmd = &cobra.Command{
	Use:   "recap <campaign-id>",
	Short: "キャプション済みのシーンからキャンペーンの要約を作るのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireGeneration(); err != nil {
			return err
		}
		recap, err := app.Manager.ComposeRecap(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]string{"campaign_id": args[0], "recap": recap}, func(w io.Writer) {
			fmt.Fprintln(w, recap)
		})
	},
}

// montageCmd は、キャンペーンを1冊のモンタージュにまとめるのだ。
var montageCmd = &cobra.Command{
	Use:   "montage",
	Short: "キャンペーンを PDF や Markdown のモンタージュにまとめるのだ。",
}

var montagePlanCmd = &cobra.Command{
	Use:   "plan <campaign-id>",
	Short: "ページ構成だけを表示するのだ。何も保存しないのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := app.Manager.CompileMontage(cmd.Context(), args[0], montOpts.IncludeRecap)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), plan, func(w io.Writer) {
			for i, p := range plan.Pages {
				line := fmt.Sprintf("%3d  %-8s %s", i+1, p.Kind, p.Title)
				if p.CaptionMissing {
					line += "  (caption missing)"
				}
				fmt.Fprintln(w, line)
			}
		})
	},
}

var montageExportCmd = &cobra.Command{
	Use:   "export <campaign-id>",
	Short: "モンタージュを書き出すのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := app.Manager.ExportMontage(cmd.Context(), workflow.ExportRequest{
			CampaignID:   args[0],
			IncludeRecap: montOpts.IncludeRecap,
			Format:       montOpts.Format,
		})
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res, func(w io.Writer) {
			fmt.Fprintf(w, "exported %s (%s, %d pages)\n", res.Path, res.Format, res.Pages)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{montagePlanCmd, montageExportCmd} {
		c.Flags().BoolVar(&montOpts.IncludeRecap, "recap", false, "保存済みの要約を最後のページに入れるのだ。")
	}
	montageExportCmd.Flags().StringVarP(&montOpts.Format, "format", "f", "pdf", "出力形式（pdf / markdown）なのだ。")

	montageCmd.AddCommand(montagePlanCmd, montageExportCmd)
	rootCmd.AddCommand(recapCmd, montageCmd)
}
