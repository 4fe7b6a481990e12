package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/settings"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and edit a chat's stored settings",
	}
	cmd.AddCommand(newSettingsShowCmd(opts))
	cmd.AddCommand(newSettingsSetCmd(opts))
	cmd.AddCommand(newSettingsOwnerCmd(opts))
	return cmd
}

func newSettingsShowCmd(opts *rootOptions) *cobra.Command {
	var chatID int64
	c := &cobra.Command{
		Use:   "show",
		Short: "Print a chat's settings (the token is never printed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.settings.Get(ctx, chatID)
			if err != nil {
				return err
			}
			printSettings(cmd, s)
			return nil
		},
	}
	c.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id")
	_ = c.MarkFlagRequired("chat-id")
	return c
}

func newSettingsSetCmd(opts *rootOptions) *cobra.Command {
	var (
		chatID      int64
		resumeID    string
		keywords    string
		coverLetter string
		token       string
		level       string
	)

	c := &cobra.Command{
		Use:   "set",
		Short: "Update selected fields of a chat's settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("cover-letter") {
				if err := campaign.ValidateTemplate(coverLetter); err != nil {
					return err
				}
			}

			ctx := context.Background()
			a, err := openApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var sealed string
			if flags.Changed("token") {
				sealer, err := a.sealer()
				if err != nil {
					return err
				}
				if sealed, err = sealer.Seal(token); err != nil {
					return err
				}
			}

			s, err := a.settings.Update(ctx, chatID, func(s *settings.Settings) {
				if flags.Changed("resume-id") {
					s.ResumeID = resumeID
				}
				if flags.Changed("keywords") {
					s.Keywords = keywords
				}
				if flags.Changed("cover-letter") {
					s.CoverLetterTemplate = coverLetter
				}
				if flags.Changed("token") {
					s.AuthToken = sealed
				}
				if flags.Changed("subscription-level") {
					s.SubscriptionLevel = level
				}
			})
			if err != nil {
				return err
			}
			printSettings(cmd, s)
			return nil
		},
	}

	c.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id")
	c.Flags().StringVar(&resumeID, "resume-id", "", "hh resume id")
	c.Flags().StringVar(&keywords, "keywords", "", "vacancy search query")
	c.Flags().StringVar(&coverLetter, "cover-letter", "", "cover letter template ({company_name}, {vacancy_name})")
	c.Flags().StringVar(&token, "token", "", "hh access token (stored sealed)")
	c.Flags().StringVar(&level, "subscription-level", "", "subscription level")
	_ = c.MarkFlagRequired("chat-id")
	return c
}

func newSettingsOwnerCmd(opts *rootOptions) *cobra.Command {
	var resumeID string
	c := &cobra.Command{
		Use:   "owner",
		Short: "Find the chat that selected a resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			chatID, err := a.settings.FindResumeOwner(ctx, resumeID)
			if errors.Is(err, settings.ErrNotFound) {
				return fmt.Errorf("no chat uses resume %q", resumeID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chatID)
			return nil
		},
	}
	c.Flags().StringVar(&resumeID, "resume-id", "", "hh resume id")
	_ = c.MarkFlagRequired("resume-id")
	return c
}

func printSettings(cmd *cobra.Command, s settings.Settings) {
	orUnset := func(v string) string {
		if v == "" {
			return "(not set)"
		}
		return v
	}
	token := "(not set)"
	if s.Authorized() {
		token = "(sealed)"
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "chat_id\t%d\n", s.ChatID)
	fmt.Fprintf(w, "resume_id\t%s\n", orUnset(s.ResumeID))
	fmt.Fprintf(w, "keywords\t%s\n", orUnset(s.Keywords))
	fmt.Fprintf(w, "cover_letter_template\t%q\n", s.CoverLetterTemplate)
	fmt.Fprintf(w, "auth_token\t%s\n", token)
	fmt.Fprintf(w, "subscription_level\t%s\n", orUnset(s.SubscriptionLevel))
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated_at\t%s\n", s.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	_ = w.Flush()
}
