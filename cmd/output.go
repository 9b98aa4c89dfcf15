package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shouni/go-campaign-kit/pkg/domain"
)

// printJSON は、値を整形した JSON で書き出すのだ。
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult は、--json なら JSON で、そうでなければ text 関数で書き出すのだ。
func printResult(w io.Writer, v any, text func(io.Writer)) error {
	if opts.JSON {
		return printJSON(w, v)
	}
	text(w)
	return nil
}

func writeCharacter(w io.Writer, c domain.Character) {
	fmt.Fprintf(w, "ID:          %s\n", c.ID)
	fmt.Fprintf(w, "Name:        %s\n", c.Label())
	if c.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", c.Description)
	}
	if c.ReferenceImage != "" {
		fmt.Fprintf(w, "Reference:   %s\n", c.ReferenceImage)
	}
	if c.VisualIdentity != "" {
		fmt.Fprintf(w, "Identity:    %s\n", c.VisualIdentity)
	}
}

func writeCharacters(w io.Writer, chars []domain.Character) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tIDENTITY")
	for _, c := range chars {
		identity := "-"
		if c.VisualIdentity != "" {
			identity = "ready"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Role, identity)
	}
	_ = tw.Flush()
}

func writeCampaign(w io.Writer, c domain.Campaign) {
	fmt.Fprintf(w, "ID:          %s\n", c.ID)
	fmt.Fprintf(w, "Name:        %s\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", c.Description)
	}
	if c.Style != "" {
		fmt.Fprintf(w, "Style:       %s\n", c.Style)
	}
	fmt.Fprintf(w, "Characters:  %s\n", strings.Join(c.CharacterIDs, ", "))
	for i, ch := range c.Chapters {
		fmt.Fprintf(w, "Chapter %d:   %s (%s) scenes=%d\n", i+1, ch.Name, ch.ID, len(ch.SceneIDs))
	}
	if c.Recap != "" {
		fmt.Fprintf(w, "Recap:       %s\n", c.Recap)
	}
}

func writeCampaigns(w io.Writer, campaigns []domain.Campaign) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCHAPTERS\tCHARACTERS")
	for _, c := range campaigns {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", c.ID, c.Name, len(c.Chapters), len(c.CharacterIDs))
	}
	_ = tw.Flush()
}

func writeScene(w io.Writer, s domain.Scene) {
	fmt.Fprintf(w, "ID:        %s\n", s.ID)
	fmt.Fprintf(w, "Title:     %s\n", s.DisplayTitle())
	fmt.Fprintf(w, "State:     %s\n", s.State())
	fmt.Fprintf(w, "Revision:  %d\n", s.Revision)
	fmt.Fprintf(w, "Image:     %s\n", s.ImagePath)
	fmt.Fprintf(w, "Caption:   %s\n", s.CaptionText())
	if s.Truncated {
		fmt.Fprintln(w, "Prompt:    truncated to fit the prompt limit")
	}
}

func writeScenes(w io.Writer, scenes []domain.Scene) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTITLE\tSTATE\tREV")
	for i, s := range scenes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", i+1, s.ID, s.DisplayTitle(), s.State(), s.Revision)
	}
	_ = tw.Flush()
}
