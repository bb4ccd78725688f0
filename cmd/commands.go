package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"study-assistant/internal/app"
	"study-assistant/internal/helper"
)

var sessionID string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Index a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			doc, err := a.Service.Ingest(ctx, args[0], data)
			if err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), doc)
			return nil
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			resp, err := a.Service.Query(ctx, args[0], sessionID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", resp.Content)
			if len(resp.Sources) > 0 {
				fmt.Fprintf(out, "Sources: %v\n", resp.Sources)
			}
			return nil
		})
	},
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage indexed documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			docs, err := a.Service.ListDocuments(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tTYPE\tCHUNKS\tUPLOADED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Filename, d.FileType, d.ChunkCount, d.UploadDate.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Service.DeleteDocument(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

var faqsCmd = &cobra.Command{
	Use:   "faqs",
	Short: "Manage the FAQ set",
}

var faqsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the reference FAQs once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Service.SeedFAQs(ctx)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "FAQs already seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d FAQs successfully\n", n)
			return nil
		})
	},
}

var faqsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the FAQ set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			faqs, err := a.Service.ListFAQs(ctx)
			if err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), faqs)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Print the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			msgs, err := a.Service.History(ctx, args[0])
			if err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), msgs)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document, chunk and FAQ counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.Service.Stats(ctx)
			if err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), stats)
			return nil
		})
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or import the vector collection",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the vector collection to a snapshot file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			path, err := a.Vectors.Export(firstArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d chunks to %s\n", a.Vectors.Count(), path)
			return nil
		})
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Replace the vector collection with a snapshot file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			path, err := a.Vectors.Import(firstArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chunks from %s\n", a.Vectors.Count(), path)
			return nil
		})
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	queryCmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "Session id the exchange is recorded under")

	documentsCmd.AddCommand(documentsListCmd, documentsDeleteCmd)
	faqsCmd.AddCommand(faqsSeedCmd, faqsListCmd)
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)

	rootCmd.AddCommand(ingestCmd, queryCmd, documentsCmd, faqsCmd, historyCmd, statsCmd, snapshotCmd)
}
