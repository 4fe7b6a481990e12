package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/headhunter"
	"github.com/example/hhbot/internal/runs"
)

func newCampaignCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Run vacancy campaigns outside the bot",
	}
	cmd.AddCommand(newCampaignRunCmd(opts), newCampaignHistoryCmd(opts))
	return cmd
}

func newCampaignRunCmd(opts *rootOptions) *cobra.Command {
	var chatID int64

	c := &cobra.Command{
		Use:   "run",
		Short: "Apply to vacancies with a chat's stored settings, printing progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, token, err := a.openToken(ctx, chatID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rep := campaign.ReporterFunc(func(p campaign.Progress) { printProgress(out, p) })
			res := campaign.New(a.hhClient(token), rep, campaign.Options{
				PageRetries: a.cfg.PageRetries,
				PageBackoff: a.cfg.PageBackoff,
				Logger:      a.log.Named("campaign"),
			}).Run(ctx, campaign.Params{
				ResumeID:            s.ResumeID,
				Keywords:            s.Keywords,
				CoverLetterTemplate: s.CoverLetterTemplate,
			})

			printResult(out, res, a.cfg.DisplayTimezone)
			if err := a.runs.Record(context.WithoutCancel(ctx), runs.FromResult(chatID, res)); err != nil {
				a.log.Warn("campaign run not recorded", zap.String("run_id", res.RunID), zap.Error(err))
			}
			if res.Outcome == campaign.OutcomeFailed || res.Outcome == campaign.OutcomeMissingParameters {
				return res.Err
			}
			return nil
		},
	}
	c.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id whose settings to use")
	_ = c.MarkFlagRequired("chat-id")
	return c
}

func newCampaignHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		chatID int64
		limit  int
	)

	c := &cobra.Command{
		Use:   "history",
		Short: "List a chat's most recent campaign runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.runs.ListByChat(ctx, chatID, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), list, a.cfg.DisplayTimezone)
			return nil
		},
	}
	c.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id")
	c.Flags().IntVar(&limit, "limit", runs.DefaultLimit, "maximum number of runs to list")
	_ = c.MarkFlagRequired("chat-id")
	return c
}

func newQuotaCmd(opts *rootOptions) *cobra.Command {
	var chatID int64

	c := &cobra.Command{
		Use:   "quota",
		Short: "Print how many applications a chat can still send today",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			_, token, err := a.openToken(ctx, chatID)
			if err != nil {
				return err
			}
			history, err := a.hhClient(token).RecentNegotiations(ctx, headhunter.MaxNegotiations)
			if err != nil {
				return err
			}
			q := campaign.EstimateQuota(history, time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "remaining: %d/%d\nnext available: %s\n",
				q.Remaining, campaign.MaxDailyResponses, q.Display(a.cfg.DisplayTimezone))
			return nil
		},
	}
	c.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id")
	_ = c.MarkFlagRequired("chat-id")
	return c
}

func printRuns(w io.Writer, list []runs.Run, loc *time.Location) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOUTCOME\tSENT\tATTEMPTED\tDURATION\tKEYWORDS")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.In(loc).Format("02.01.2006 15:04"), r.Outcome, r.Succeeded, r.Attempted,
			r.Duration().Round(time.Second), r.Keywords)
	}
	_ = tw.Flush()
}

func printProgress(w io.Writer, p campaign.Progress) {
	switch p.Stage {
	case campaign.StageFetchingQuota:
		fmt.Fprintln(w, "checking today's quota...")
	case campaign.StageStarted:
		fmt.Fprintf(w, "%d applications available, starting\n", p.Remaining)
	case campaign.StageResponding:
		fmt.Fprintf(w, "sent %d/%d (attempted %d)\n", p.Succeeded, p.Succeeded+p.Remaining, p.Attempted)
	}
}

func printResult(w io.Writer, res campaign.Result, loc *time.Location) {
	fmt.Fprintf(w, "run %s: %s\n", res.RunID, res.Outcome)
	switch res.Outcome {
	case campaign.OutcomeMissingParameters:
		names := make([]string, len(res.Missing))
		for i, m := range res.Missing {
			names[i] = string(m)
		}
		fmt.Fprintf(w, "missing: %s\n", strings.Join(names, ", "))
	case campaign.OutcomeDailyLimitReached:
		fmt.Fprintf(w, "next application available: %s\n",
			campaign.Quota{NextAvailableAt: res.NextAvailableAt}.Display(loc))
	default:
		fmt.Fprintf(w, "sent %d of %d (attempted %d)\n", res.Succeeded, res.Remaining, res.Attempted)
		if res.VacanciesExhausted {
			fmt.Fprintf(w, "no more vacancies for %q\n", res.Keywords)
		}
	}
	if res.Err != nil {
		fmt.Fprintf(w, "error: %v\n", res.Err)
	}
}
