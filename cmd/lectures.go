package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lectio/lectio/client"
	"github.com/lectio/lectio/pkg/clierr"
	"github.com/lectio/lectio/pkg/pool"
	"github.com/lectio/lectio/pkg/validation"
	"github.com/lectio/lectio/tracker"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func lecturesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lectures",
		Short: "List, upload and follow lectures",
	}

	cmd.AddCommand(
		listCmd(a),
		showCmd(a),
		watchCmd(a),
		uploadCmd(a),
	)

	return cmd
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your lectures",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			lectures, err := a.api.ListLectures(cmd.Context())
			if err != nil {
				return err
			}
			if len(lectures) == 0 {
				cmd.Println("No lectures found.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Title", "Subject", "Status", "Progress", "Created"})
			table.SetAutoWrapText(false)
			table.SetRowLine(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			for _, l := range lectures {
				table.Append([]string{l.ID, l.Title, deref(l.Subject), string(l.Status), fmt.Sprintf("%d%%", l.Progress), l.CreatedAt})
			}
			table.Render()
			return nil
		}),
	}
}

func showCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <lecture-id>",
		Short: "Show a lecture and its analysis when ready",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := validation.ValidateLectureID(id); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			lecture, err := a.api.GetLecture(cmd.Context(), id)
			if err != nil {
				return err
			}
			printLecture(cmd.OutOrStdout(), lecture)
			if lecture.Status != client.StatusDone {
				return nil
			}

			analysis, err := a.api.GetAnalysis(cmd.Context(), id)
			if err != nil {
				if !client.IsNotFound(err) {
					return err
				}
				analysis = lecture.Analysis
			}
			if analysis == nil {
				cmd.Println("Analysis not available yet.")
				return nil
			}
			printAnalysis(cmd.OutOrStdout(), analysis)
			return nil
		}),
	}
}

type watchOptions struct {
	interval time.Duration
	workers  int
}

func (o *watchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&o.interval, "interval", 0, "Polling interval (default poll.interval from the config)")
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 4, "Number of lectures followed at the same time")
}

func watchCmd(a *app) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <lecture-id>...",
		Short: "Follow lectures until their analysis is ready",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			return a.watchLectures(cmd, args, opts)
		}),
	}
	opts.bind(cmd)

	return cmd
}

func uploadCmd(a *app) *cobra.Command {
	var title, subject string
	var watch bool
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a lecture video for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateNonEmptyString("title", title); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return clierr.New(clierr.Validation, fmt.Sprintf("Cannot open %s.", path), err)
			}
			defer f.Close()

			lecture, err := a.api.UploadLecture(cmd.Context(), client.Upload{
				Title:    title,
				Subject:  subject,
				Filename: filepath.Base(path),
				Body:     f,
			})
			if err != nil {
				return err
			}
			cmd.Printf("Uploaded lecture %s (%s).\n", lecture.ID, lecture.Title)

			if !watch {
				return nil
			}
			return a.watchLectures(cmd, []string{lecture.ID}, opts)
		}),
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Lecture title")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Lecture subject")
	cmd.Flags().BoolVar(&watch, "watch", false, "Follow the lecture until its analysis is ready")
	opts.bind(cmd)

	return cmd
}

// watchLectures tracks every id concurrently and prints the outcomes in
// argument order once all of them have finished.
func (a *app) watchLectures(cmd *cobra.Command, ids []string, opts watchOptions) error {
	for _, id := range ids {
		if err := validation.ValidateLectureID(id); err != nil {
			return clierr.New(clierr.Validation, err.Error(), err)
		}
	}
	if opts.interval == 0 {
		opts.interval = a.cfg.Poll.Interval
	}
	if err := validation.ValidatePollInterval(opts.interval); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if err := validation.ValidateWorkerCount(opts.workers); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	synchronizer := tracker.New(a.api, tracker.WithInterval(opts.interval))
	bars := &syncWriter{w: cmd.ErrOrStderr()}
	results := make([]tracker.State, len(ids))
	indexes := make([]int, len(ids))
	for i := range indexes {
		indexes[i] = i
	}

	errs := pool.Run(cmd.Context(), indexes, opts.workers, func(ctx context.Context, i int) error {
		st, err := trackLecture(ctx, synchronizer, ids[i], bars)
		results[i] = st
		return err
	})

	if len(ids) == 1 && errs[0] != nil {
		return errs[0]
	}
	out := cmd.OutOrStdout()
	failed := 0
	for i, id := range ids {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(out, "%s: %v\n\n", id, toCLIError(errs[i]))
			continue
		}
		printLecture(out, results[i].Lecture)
		if results[i].Analysis != nil {
			printAnalysis(out, results[i].Analysis)
		}
		fmt.Fprintln(out)
	}
	if failed > 0 {
		return clierr.New(clierr.Internal, fmt.Sprintf("%d of %d lectures did not finish.", failed, len(ids)), pool.Join(errs))
	}
	return nil
}

// trackLecture follows one lecture and mirrors its progress on a bar.
func trackLecture(ctx context.Context, s *tracker.Synchronizer, id string, w io.Writer) (tracker.State, error) {
	h, err := s.Track(ctx, id)
	if err != nil {
		return tracker.State{}, err
	}
	defer h.Cancel()

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(shortID(id)),
		progressbar.OptionSetWidth(20),
		progressbar.OptionClearOnFinish(),
	)
	show := func(st tracker.State) {
		if st.Lecture == nil {
			return
		}
		bar.Describe(fmt.Sprintf("%s %s", shortID(id), st.Lecture.Status))
		_ = bar.Set(st.Lecture.Progress)
	}

	for {
		select {
		case <-h.Changed():
			show(h.Snapshot())
		case <-h.Done():
			st, err := h.Wait(context.Background())
			show(st)
			_ = bar.Finish()
			if err == nil && !st.Finished() {
				err = ctx.Err()
			}
			if err != nil {
				log.Debug().Err(err).Str("lecture_id", id).Int("ticks", st.Ticks).Msg("Tracking ended without a result")
			}
			return st, err
		}
	}
}

func printLecture(w io.Writer, l *client.Lecture) {
	if l == nil {
		return
	}
	fmt.Fprintf(w, "Lecture:  %s (%s)\n", l.Title, l.ID)
	if l.Subject != nil && *l.Subject != "" {
		fmt.Fprintf(w, "Subject:  %s\n", *l.Subject)
	}
	fmt.Fprintf(w, "Status:   %s (%d%%)\n", l.Status, l.Progress)
	if l.CreatedAt != "" {
		fmt.Fprintf(w, "Created:  %s\n", l.CreatedAt)
	}
	if l.ErrorMessage != nil && *l.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:    %s\n", *l.ErrorMessage)
	}
}

func printAnalysis(w io.Writer, a *client.Analysis) {
	fmt.Fprintf(w, "Score:              %.1f\n", a.Score)
	fmt.Fprintf(w, "Average attention:  %.1f%%\n", a.AvgAttention*100)
	fmt.Fprintf(w, "Average engagement: %.1f%%\n", a.AvgEngagement*100)

	summary, err := a.Summary()
	if err != nil {
		log.Warn().Err(err).Str("lecture_id", a.LectureID).Msg("Ignoring unreadable analysis summary")
		return
	}
	if summary == nil {
		return
	}
	fmt.Fprintf(w, "Frames analyzed:    %d (%d faces)\n", summary.FramesAnalyzed, summary.FacesTotal)
	if len(summary.EmotionHist) > 0 {
		names := make([]string, 0, len(summary.EmotionHist))
		for name := range summary.EmotionHist {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s %.0f%%", name, summary.EmotionHist[name]*100)
		}
		fmt.Fprintf(w, "Emotions:           %s\n", strings.Join(parts, ", "))
	}
	printHighlights(w, "Peaks", summary.TopPeaks)
	printHighlights(w, "Dips", summary.TopDips)
	if len(summary.Suggestions) > 0 {
		fmt.Fprintln(w, "Suggestions:")
		for _, s := range summary.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}

func printHighlights(w io.Writer, label string, hs []client.Highlight) {
	if len(hs) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, h := range hs {
		fmt.Fprintf(w, "  %s  attention %.0f%%  engagement %.0f%%\n",
			formatTimestamp(h.TsSec), h.AttentionRatio*100, h.EngagementRatio*100)
	}
}

// formatTimestamp renders seconds as mm:ss.
func formatTimestamp(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// syncWriter serializes writes from concurrent progress bars.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
