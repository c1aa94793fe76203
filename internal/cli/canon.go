package cli

import (
	"errors"

	"canon-rag-go/internal/app"
	"canon-rag-go/internal/repository"
	"canon-rag-go/internal/service"

	"github.com/spf13/cobra"
)

var canonAgentID uint

var canonCmd = &cobra.Command{
	Use:   "canon",
	Short: "查看或设置 agent 的正典文档列表",
}

var canonGetCmd = &cobra.Command{
	Use:   "get",
	Short: "打印当前的正典文档 ID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openCanonService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		ids, err := svc.GetSources(cmd.Context(), canonAgentID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ids)
	},
}

var canonSetCmd = &cobra.Command{
	Use:   "set [documentId...]",
	Short: "设置正典文档 ID，不带参数时取消锁定",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openCanonService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		sources := make([]any, 0, len(args))
		for _, a := range args {
			sources = append(sources, a)
		}
		ids, err := svc.UpdateSources(cmd.Context(), canonAgentID, sources)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ids)
	},
}

func openCanonService(cmd *cobra.Command) (service.CanonService, func(), error) {
	if canonAgentID == 0 {
		return nil, nil, errors.New("--agent 必须指定")
	}
	infra, err := app.OpenInfra(cmd.Context(), conf, app.InfraOptions{})
	if err != nil {
		return nil, nil, err
	}
	return service.NewCanonService(repository.NewCanonRepository(infra.DB)), infra.Close, nil
}

func init() {
	canonCmd.PersistentFlags().UintVar(&canonAgentID, "agent", 0, "agent ID")
	canonCmd.AddCommand(canonGetCmd, canonSetCmd)
	rootCmd.AddCommand(canonCmd)
}
