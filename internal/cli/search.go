package cli

import (
	"errors"

	"canon-rag-go/internal/app"

	"github.com/spf13/cobra"
)

var searchFlags struct {
	agentID uint
	query   string
	limit   int
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "在 agent 的文档中执行混合检索",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchFlags.agentID == 0 || searchFlags.query == "" {
			return errors.New("--agent 和 --query 必须指定")
		}
		ctx := cmd.Context()
		infra, err := app.OpenInfra(ctx, conf, app.InfraOptions{})
		if err != nil {
			return err
		}
		defer infra.Close()

		_, embedder := app.NewEmbedder(conf.Embedding, nil)
		results, err := app.NewSearchService(conf, infra, embedder).
			SearchDocumentChunks(ctx, searchFlags.agentID, searchFlags.query, searchFlags.limit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	searchCmd.Flags().UintVar(&searchFlags.agentID, "agent", 0, "agent ID")
	searchCmd.Flags().StringVarP(&searchFlags.query, "query", "q", "", "查询文本")
	searchCmd.Flags().IntVarP(&searchFlags.limit, "limit", "n", 0, "返回的分块数，0 表示使用配置默认值")
	rootCmd.AddCommand(searchCmd)
}
