package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/workflow"
)

// campaignOptions は campaign サブコマンドのフラグなのだ。
type campaignOptions struct {
	Name        string
	Description string
	Style       string
	Cascade     bool
}

var campOpts campaignOptions

// IllustrationStyles は CLI で案内する画風なのだ。これ以外の文字列もそのまま使えるのだ。
var IllustrationStyles = []string{"realistic", "comic", "watercolor", "pixel-art"}

// campaignCmd は、キャンペーンと章、参加キャラクターの管理をまとめるのだ。
var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "キャンペーンと章を管理するのだ。",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "キャンペーンを作成するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.Manager.CreateCampaign(cmd.Context(), workflow.CampaignInput{
			Name:        campOpts.Name,
			Description: campOpts.Description,
			Style:       campOpts.Style,
		})
		if err != nil {
			return err
		}
		return printCampaign(cmd, c)
	},
}

var campaignUpdateCmd = &cobra.Command{
	Use:   "update <campaign-id>",
	Short: "キャンペーンの名前・説明・画風を更新するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.Manager.UpdateCampaign(cmd.Context(), args[0], workflow.CampaignInput{
			Name:        campOpts.Name,
			Description: campOpts.Description,
			Style:       campOpts.Style,
		})
		if err != nil {
			return err
		}
		return printCampaign(cmd, c)
	},
}

var chapterAddCmd = &cobra.Command{
	Use:   "add-chapter <campaign-id> <name>",
	Short: "章を末尾に追加するのだ。",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := app.Manager.AddChapter(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), ch, func(w io.Writer) {
			fmt.Fprintf(w, "added chapter %q (%s)\n", ch.Name, ch.ID)
		})
	},
}

var chapterRenameCmd = &cobra.Command{
	Use:   "rename-chapter <campaign-id> <chapter-id> <name>",
	Short: "章の名前を変えるのだ。",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.Manager.RenameChapter(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return printCampaign(cmd, c)
	},
}

var campaignLinkCmd = &cobra.Command{
	Use:   "link <campaign-id> <character-id>...",
	Short: "キャラクターをキャンペーンに参加させるのだ。",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var c domain.Campaign
		for _, id := range domain.UniqueIDs(args[1:]) {
			var err error
			if c, err = app.Manager.LinkCharacter(cmd.Context(), args[0], id); err != nil {
				return err
			}
		}
		return printCampaign(cmd, c)
	},
}

var campaignUnlinkCmd = &cobra.Command{
	Use:   "unlink <campaign-id> <character-id>",
	Short: "キャラクターの参加を取り消すのだ。シーンに登場している間はできないのだ。",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.Manager.UnlinkCharacter(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printCampaign(cmd, c)
	},
}

var campaignDeleteCmd = &cobra.Command{
	Use:   "delete <campaign-id>",
	Short: "キャンペーンを削除するのだ。シーンごと消すには --cascade が要るのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Manager.DeleteCampaign(cmd.Context(), args[0], campOpts.Cascade); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted campaign %s\n", args[0])
		return nil
	},
}

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign-id>",
	Short: "キャンペーンを表示するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.Manager.GetCampaign(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printCampaign(cmd, c)
	},
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "キャンペーンの一覧を表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := app.Manager.ListCampaigns(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), list, func(w io.Writer) { writeCampaigns(w, list) })
	},
}

func printCampaign(cmd *cobra.Command, c domain.Campaign) error {
	return printResult(cmd.OutOrStdout(), c, func(w io.Writer) { writeCampaign(w, c) })
}

func init() {
	styleHelp := fmt.Sprintf("既定の画風なのだ（例: %v）。", IllustrationStyles)
	for _, c := range []*cobra.Command{campaignCreateCmd, campaignUpdateCmd} {
		c.Flags().StringVarP(&campOpts.Name, "name", "n", "", "キャンペーン名なのだ。")
		c.Flags().StringVarP(&campOpts.Description, "description", "D", "", "キャンペーンの説明なのだ。")
		c.Flags().StringVarP(&campOpts.Style, "style", "s", "", styleHelp)
		_ = c.RegisterFlagCompletionFunc("style", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return IllustrationStyles, cobra.ShellCompDirectiveNoFileComp
		})
	}
	_ = campaignCreateCmd.MarkFlagRequired("name")
	campaignDeleteCmd.Flags().BoolVar(&campOpts.Cascade, "cascade", false, "シーンと画像もまとめて削除するのだ。")

	campaignCmd.AddCommand(
		campaignCreateCmd,
		campaignUpdateCmd,
		chapterAddCmd,
		chapterRenameCmd,
		campaignLinkCmd,
		campaignUnlinkCmd,
		campaignDeleteCmd,
		campaignShowCmd,
		campaignListCmd,
	)
	rootCmd.AddCommand(campaignCmd)
}
