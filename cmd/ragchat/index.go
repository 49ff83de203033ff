package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragchat/internal/config"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
	"github.com/fyrsmithlabs/ragchat/internal/retrieval"
)

func newIndexCmd(root *rootOptions) *cobra.Command {
	var (
		contentRoot string
		query       string
		topK        int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the content root offline and optionally score a query",
		Long: `Scan the content root with the configured filters and print the file
count. With --query, rank files the way /ask would in scan mode, without
calling any AI service.

Examples:
  ragchat index --root ../StudentManagementSystem
  ragchat index --root . --query "Làm sao thêm sinh viên?" --top 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if contentRoot != "" {
				cfg.Index.ContentRoot = contentRoot
			}
			if topK <= 0 {
				topK = cfg.Retrieval.TopK
			}

			logger := logging.NewNop()
			idx, err := newIndex(cfg, logger, metrics.NewNop())
			if err != nil {
				return err
			}
			files, err := idx.Files(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d files indexed under %s\n", len(files), idx.Root())
			if query == "" {
				return nil
			}

			fmt.Fprintf(out, "search terms: %v\n\n", retrieval.SearchTerms(query))
			docs, err := retrieval.NewScorer(idx, logger).FindRelevant(cmd.Context(), query, topK)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(out, "no matching files")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tPATH")
			for _, d := range docs {
				fmt.Fprintf(tw, "%.1f\t%s\n", d.Score, d.FilePath)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&contentRoot, "root", "", "content root to scan (overrides index.content_root)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "question to score against the index")
	cmd.Flags().IntVar(&topK, "top", 0, "number of files to show (default retrieval.top_k)")
	return cmd
}
