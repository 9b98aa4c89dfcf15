package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/workflow"
)

// characterOptions は character サブコマンドのフラグなのだ。
type characterOptions struct {
	Name        string
	Role        string
	Description string
	Reference   string
	Hint        string
}

var charOpts characterOptions

// characterCmd は、キャラクターの登録と管理をまとめるのだ。
var characterCmd = &cobra.Command{
	Use:     "character",
	Aliases: []string{"char"},
	Short:   "キャラクターを登録・管理するのだ。",
}

var characterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "キャラクターを作成するのだ。説明文からビジュアルアイデンティティを組み立てるのだよ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.Manager.CreateCharacter(cmd.Context(), workflow.CharacterInput{
			Name:           charOpts.Name,
			Role:           charOpts.Role,
			Description:    charOpts.Description,
			ReferenceImage: charOpts.Reference,
		})
		if err != nil {
			return err
		}
		return printCharacter(cmd, c)
	},
}

var characterUpdateCmd = &cobra.Command{
	Use:   "update <character-id>",
	Short: "キャラクターを更新するのだ。指定したフラグだけ変わるのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch workflow.CharacterPatch
		flags := cmd.Flags()
		if flags.Changed("name") {
			patch.Name = &charOpts.Name
		}
		if flags.Changed("role") {
			patch.Role = &charOpts.Role
		}
		if flags.Changed("description") {
			patch.Description = &charOpts.Description
		}
		if flags.Changed("reference") {
			patch.ReferenceImage = &charOpts.Reference
		}
		c, err := app.Manager.UpdateCharacter(cmd.Context(), args[0], patch)
		if err != nil {
			return err
		}
		return printCharacter(cmd, c)
	},
}

var characterExpandCmd = &cobra.Command{
	Use:   "expand <character-id>",
	Short: "AI に説明文を書き直してもらうのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireGeneration(); err != nil {
			return err
		}
		c, err := app.Manager.ExpandCharacterDescription(cmd.Context(), args[0], charOpts.Hint)
		if err != nil {
			return err
		}
		return printCharacter(cmd, c)
	},
}

var characterDeleteCmd = &cobra.Command{
	Use:   "delete <character-id>",
	Short: "キャラクターを削除するのだ。シーンに登場している間は削除できないのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Manager.DeleteCharacter(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted character %s\n", args[0])
		return nil
	},
}

var characterShowCmd = &cobra.Command{
	Use:   "show <character-id>",
	Short: "キャラクターを表示するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.Manager.GetCharacter(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printCharacter(cmd, c)
	},
}

var characterListCmd = &cobra.Command{
	Use:   "list",
	Short: "キャラクターの一覧を表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		chars, err := app.Manager.ListCharacters(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), chars, func(w io.Writer) { writeCharacters(w, chars) })
	},
}

func printCharacter(cmd *cobra.Command, c domain.Character) error {
	return printResult(cmd.OutOrStdout(), c, func(w io.Writer) { writeCharacter(w, c) })
}

func init() {
	for _, c := range []*cobra.Command{characterCreateCmd, characterUpdateCmd} {
		c.Flags().StringVarP(&charOpts.Name, "name", "n", "", "キャラクター名なのだ。")
		c.Flags().StringVarP(&charOpts.Role, "role", "r", "", "クラスや役割（例: Ranger）なのだ。")
		c.Flags().StringVarP(&charOpts.Description, "description", "D", "", "見た目の説明なのだ。")
		c.Flags().StringVar(&charOpts.Reference, "reference", "", "参照画像のパスまたは URL なのだ。")
	}
	_ = characterCreateCmd.MarkFlagRequired("name")
	characterExpandCmd.Flags().StringVar(&charOpts.Hint, "hint", "", "書き直しの方向性なのだ。")

	characterCmd.AddCommand(
		characterCreateCmd,
		characterUpdateCmd,
		characterExpandCmd,
		characterDeleteCmd,
		characterShowCmd,
		characterListCmd,
	)
	rootCmd.AddCommand(characterCmd)
}
