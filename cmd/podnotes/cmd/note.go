package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/podnotes/pkg/notes"
	"github.com/gobeyondidentity/podnotes/pkg/session"
	"github.com/gobeyondidentity/podnotes/pkg/timeutil"
)

func newNoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "note",
		Aliases: []string{"notes"},
		Short:   "Create, list, update and delete notes",
	}
	cmd.AddCommand(
		newNoteCreateCmd(a),
		newNoteListCmd(a),
		newNoteUpdateCmd(a),
		newNoteDeleteCmd(a),
	)
	return cmd
}

// bindNoteFlags registers the note input flags on cmd.
func bindNoteFlags(cmd *cobra.Command, in *session.NoteInput) {
	cmd.Flags().StringVar(&in.Title, "title", "", "Note title (required)")
	cmd.Flags().StringVar(&in.Content, "content", "", "Note body (required)")
	cmd.Flags().StringVar(&in.Subject, "subject", "", "Subject (default: first 100 characters of content)")
	cmd.Flags().StringVar(&in.Date, "date", "", "Date (default: now, RFC 3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
}

func newNoteCreateCmd(a *app) *cobra.Command {
	var in session.NoteInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			note, err := a.session().Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.printNote(cmd.OutOrStdout(), "Created", note)
		},
	}
	bindNoteFlags(cmd, &in)
	cmd.Flags().StringVar(&in.ID, "id", "", "Note id (default: a new UUID)")
	return cmd
}

func newNoteUpdateCmd(a *app) *cobra.Command {
	var in session.NoteInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a note",
		Args:  ExactArgsWithUsage(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			note, err := a.session().Update(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return a.printNote(cmd.OutOrStdout(), "Updated", note)
		},
	}
	bindNoteFlags(cmd, &in)
	return cmd
}

func newNoteDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  ExactArgsWithUsage(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := a.session().Delete(cmd.Context(), id); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if handled, err := a.formatOutput(w, map[string]string{"deleted": id}); handled || err != nil {
				return err
			}
			printOK(w, "Deleted note %s", id)
			return nil
		},
	}
}

func newNoteListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes in the container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.session().List(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if handled, err := a.formatOutput(w, result); handled || err != nil {
				return err
			}
			return printNoteTable(w, result)
		},
	}
}

func (a *app) printNote(w io.Writer, verb string, note *notes.Note) error {
	if handled, err := a.formatOutput(w, note); handled || err != nil {
		return err
	}
	printOK(w, "%s note %s", verb, note.ID)
	return nil
}

func printNoteTable(w io.Writer, result *notes.ListResult) error {
	if len(result.Notes) == 0 && len(result.Failed) == 0 {
		fmt.Fprintln(w, dimFmt("No notes."))
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tDATE\tMODIFIED\tSIZE")
	for _, n := range result.Notes {
		modified, size := "", ""
		if n.Modified != nil {
			modified = timeutil.Relative(*n.Modified)
		}
		if n.Size != nil {
			size = fmt.Sprint(*n.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, truncate(n.Title, 40), orDash(n.Date), orDash(modified), orDash(size))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, u := range result.Failed {
		fmt.Fprintf(w, "%s could not read %s\n", warnFmt("!"), u)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
