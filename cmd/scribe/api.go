package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atotto/clipboard"
	"github.com/medicalscribe/scribe/internal/httpapi"
	"github.com/medicalscribe/scribe/internal/injection"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/tui"
	"github.com/spf13/cobra"
)

var apiAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "daemon HTTP address (default is http.listen from the config)")
}

func apiClient() (*httpapi.Client, error) {
	addr := apiAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		addr = cfg.HTTP.Listen
	}
	if addr == "" {
		return nil, fmt.Errorf("the daemon HTTP API is disabled (set http.listen or pass --addr)")
	}
	return httpapi.NewClient(addr), nil
}

// writeOut prints text and, with copy set, places it on the clipboard.
func writeOut(w io.Writer, text string, copyOut bool) error {
	fmt.Fprintln(w, text)
	if !copyOut {
		return nil
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	fmt.Fprintln(os.Stderr, tui.StyleMuted.Render("copied to clipboard"))
	return nil
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the consultation live",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			return tui.Watch(cmd.Context(), client)
		},
	}
}

func transcriptCmd() *cobra.Command {
	var copyOut bool

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print the current transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			snap, err := client.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if strings.TrimSpace(snap.Transcript) == "" {
				return fmt.Errorf("the transcript is empty")
			}
			return writeOut(cmd.OutOrStdout(), snap.Transcript, copyOut)
		},
	}

	cmd.Flags().BoolVar(&copyOut, "copy", false, "also copy to the clipboard")
	return cmd
}

func documentCmd() *cobra.Command {
	var (
		copyOut  bool
		typeOut  bool
		backends []string
		delay    time.Duration
	)

	cmd := &cobra.Command{
		Use:       "document <kind>",
		Short:     "Print one document of the finalized consultation",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"prontuario", "receituario", "atestado", "exames", "orientacoes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseDocumentKind(args[0])
			if err != nil {
				return err
			}
			client, err := apiClient()
			if err != nil {
				return err
			}
			snap, err := client.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if snap.Bundle == nil {
				return fmt.Errorf("the consultation is not finalized")
			}
			content, _ := snap.Bundle.Document(kind)
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("%s is empty", kind)
			}
			if typeOut {
				return typeDocument(cmd.Context(), cmd.ErrOrStderr(), content, backends, delay)
			}
			return writeOut(cmd.OutOrStdout(), content, copyOut)
		},
	}

	cmd.Flags().BoolVar(&copyOut, "copy", false, "also copy to the clipboard")
	cmd.Flags().BoolVar(&typeOut, "type", false, "type the document into the focused window instead of printing it")
	cmd.Flags().StringSliceVar(&backends, "backends", injection.DefaultBackends, "injection backends to try in order")
	cmd.Flags().DurationVar(&delay, "delay", 2*time.Second, "wait before typing so the target field can be focused")
	return cmd
}

// typeDocument gives the user time to focus the record field, then types
// the text with the first backend that works.
func typeDocument(ctx context.Context, w io.Writer, text string, backends []string, delay time.Duration) error {
	inj, err := injection.NewByName(backends, injection.DefaultTimeout)
	if err != nil {
		return err
	}
	if delay > 0 {
		fmt.Fprintf(w, "Typing in %s, focus the target field...\n", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	used, err := inj.Inject(ctx, text)
	if err != nil {
		return err
	}
	if used == "clipboard" {
		fmt.Fprintln(w, "Typing unavailable, document copied to the clipboard")
		return nil
	}
	fmt.Fprintf(w, "Typed with %s\n", used)
	return nil
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit the physician profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the physician profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			view, err := client.Profile(cmd.Context())
			if err != nil {
				return err
			}
			for _, line := range tui.ProfileLines(view.Profile, view.DoctorName) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Edit the physician profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			view, err := client.Profile(cmd.Context())
			if err != nil {
				return err
			}
			result, err := tui.EditProfile(view.Profile, view.DoctorName)
			if err != nil {
				return err
			}
			if result.Cancelled {
				fmt.Println("Profile unchanged.")
				return nil
			}
			if _, err := client.SaveProfile(cmd.Context(), httpapi.ProfileView{Profile: result.Profile, DoctorName: result.DoctorName}); err != nil {
				return err
			}
			fmt.Println(tui.StyleSuccess.Render("Profile saved."))
			return nil
		},
	})

	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse finalized consultations",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent consultations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			entries, err := client.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "number of consultations to show")
	cmd.AddCommand(list)

	var copyOut bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one consultation; the id may be shortened",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			rec, err := client.HistoryRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOut(cmd.OutOrStdout(), formatRecord(rec), copyOut)
		},
	}
	show.Flags().BoolVar(&copyOut, "copy", false, "also copy to the clipboard")
	cmd.AddCommand(show)

	return cmd
}

func printHistory(w io.Writer, entries []httpapi.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No consultations yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tPATIENT\tSCENARIO\tDURATION")
	for _, e := range entries {
		patient := e.PatientName
		if patient == "" {
			patient = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(e.ID), e.CreatedAt.Local().Format("02/01/2006 15:04"),
			patient, e.Scenario, time.Duration(e.ElapsedSeconds)*time.Second)
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatRecord(rec httpapi.HistoryRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Consultation %s (%s, %s)\n", rec.ID, rec.CreatedAt.Local().Format("02/01/2006 15:04"), rec.Scenario)
	if rec.PatientName != "" || rec.PatientAge > 0 {
		fmt.Fprintf(&b, "Patient: %s, %d\n", rec.PatientName, rec.PatientAge)
	}
	if rec.ConsultationID != nil {
		fmt.Fprintf(&b, "Backend id: %d\n", *rec.ConsultationID)
	}
	fmt.Fprintf(&b, "\n## Transcript\n%s\n", rec.Transcript)
	if rec.Insight != "" {
		fmt.Fprintf(&b, "\n## Insight\n%s\n", rec.Insight)
	}
	for _, kind := range models.DocumentKinds {
		if content, _ := rec.Bundle.Document(kind); strings.TrimSpace(content) != "" {
			fmt.Fprintf(&b, "\n## %s\n%s\n", kind, content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// requestContext bounds one-shot calls that are not tied to a session wait.
func requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}
