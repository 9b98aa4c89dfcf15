package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/generator"
)

// sceneOptions は scene サブコマンドのフラグなのだ。
type sceneOptions struct {
	Chapter    string
	Title      string
	Style      string
	Characters []string
}

var sceneOpts sceneOptions

// sceneCmd は、シーンの挿絵とキャプションの生成をまとめるのだ。
var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "シーンの挿絵とキャプションを生成するのだ。",
}

var sceneGenerateCmd = &cobra.Command{
	Use:   "generate <campaign-id> <prompt>",
	Short: "シーンの挿絵を生成して章の末尾に追加するのだ。",
	Long: `登場キャラクターのビジュアルアイデンティティをプロンプトの先頭に並べて挿絵を生成するのだ。
キャプションの生成に失敗しても挿絵は残り、あとで scene caption で作り直せるのだ。`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireGeneration(); err != nil {
			return err
		}
		s, err := app.Manager.GenerateScene(cmd.Context(), generator.GenerateRequest{
			CampaignID:   args[0],
			ChapterID:    sceneOpts.Chapter,
			Title:        sceneOpts.Title,
			Prompt:       args[1],
			Style:        sceneOpts.Style,
			CharacterIDs: domain.UniqueIDs(sceneOpts.Characters),
		})
		if err != nil {
			return err
		}
		return printScene(cmd, s)
	},
}

var sceneRegenerateCmd = &cobra.Command{
	Use:   "regenerate <scene-id>",
	Short: "保存済みのプロンプトで挿絵を作り直すのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireGeneration(); err != nil {
			return err
		}
		s, err := app.Manager.RegenerateScene(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printScene(cmd, s)
	},
}

var sceneCaptionCmd = &cobra.Command{
	Use:   "caption <scene-id>",
	Short: "キャプションを生成し直すのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireGeneration(); err != nil {
			return err
		}
		s, err := app.Manager.CaptionScene(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printScene(cmd, s)
	},
}

var sceneDeleteCmd = &cobra.Command{
	Use:   "delete <scene-id>",
	Short: "シーンと画像を削除するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Manager.DeleteScene(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted scene %s\n", args[0])
		return nil
	},
}

var sceneShowCmd = &cobra.Command{
	Use:   "show <scene-id>",
	Short: "シーンを表示するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.Manager.GetScene(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printScene(cmd, s)
	},
}

var sceneListCmd = &cobra.Command{
	Use:   "list <campaign-id>",
	Short: "キャンペーンのシーンを掲載順に表示するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenes, err := app.Manager.ListScenes(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), scenes, func(w io.Writer) { writeScenes(w, scenes) })
	},
}

func printScene(cmd *cobra.Command, s domain.Scene) error {
	return printResult(cmd.OutOrStdout(), s, func(w io.Writer) { writeScene(w, s) })
}

func init() {
	f := sceneGenerateCmd.Flags()
	f.StringVarP(&sceneOpts.Chapter, "chapter", "c", "", "追加先の章 ID なのだ。")
	f.StringVarP(&sceneOpts.Title, "title", "t", "", "シーンのタイトルなのだ。")
	f.StringVarP(&sceneOpts.Style, "style", "s", "", "キャンペーンの画風を上書きするのだ。")
	f.StringSliceVar(&sceneOpts.Characters, "characters", nil, "登場キャラクターの ID（カンマ区切り、順序どおりにプロンプトへ並ぶ）なのだ。")
	_ = sceneGenerateCmd.MarkFlagRequired("chapter")

	sceneCmd.AddCommand(
		sceneGenerateCmd,
		sceneRegenerateCmd,
		sceneCaptionCmd,
		sceneDeleteCmd,
		sceneShowCmd,
		sceneListCmd,
	)
	rootCmd.AddCommand(sceneCmd)
}
