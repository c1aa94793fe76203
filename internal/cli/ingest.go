package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"canon-rag-go/internal/app"
	"canon-rag-go/internal/model"
	"canon-rag-go/internal/pipeline"
	"canon-rag-go/internal/repository"

	"github.com/spf13/cobra"
)

var ingestFlags struct {
	agentID    uint
	documentID uint
	vision     bool
	ttl        time.Duration
}

// ingestCmd 在本地直接运行入库流水线，跳过对象存储和 Kafka。
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "提取、分块并写入一个本地文件",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestFlags.agentID == 0 {
			return errors.New("--agent 必须指定")
		}
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			return err
		}
		ctx := cmd.Context()

		infra, err := app.OpenInfra(ctx, conf, app.InfraOptions{})
		if err != nil {
			return err
		}
		defer infra.Close()

		docs := repository.NewDocumentRepository(infra.DB)
		doc, err := ingestTarget(cmd, docs, filepath.Base(path))
		if err != nil {
			return err
		}

		embedder, _ := app.NewEmbedder(conf.Embedding, nil)
		processor := app.NewProcessor(conf, infra, embedder)
		res, err := processor.ProcessFile(ctx, path, doc.ID, doc.AgentID, doc.FileName, pipeline.ProcessOptions{
			RunVision: ingestFlags.vision,
			ExpiresAt: doc.ExpiresAt,
		})
		if perr := printJSON(cmd.OutOrStdout(), newIngestOutput(doc.ID, res)); perr != nil {
			return perr
		}
		return err
	},
}

// ingestTarget 返回要写入的文档：指定 --document 时复用已有记录，否则新建。
func ingestTarget(cmd *cobra.Command, docs repository.DocumentRepository, fileName string) (*model.Document, error) {
	ctx := cmd.Context()
	if ingestFlags.documentID != 0 {
		doc, err := docs.FindByID(ctx, ingestFlags.documentID)
		if err != nil {
			return nil, fmt.Errorf("查询文档 %d 失败: %w", ingestFlags.documentID, err)
		}
		if doc.AgentID != ingestFlags.agentID {
			return nil, fmt.Errorf("文档 %d 不属于 agent %d", doc.ID, ingestFlags.agentID)
		}
		return doc, nil
	}
	doc := &model.Document{AgentID: ingestFlags.agentID, FileName: fileName, Status: model.DocumentStatusProcessing}
	if ingestFlags.ttl > 0 {
		exp := time.Now().Add(ingestFlags.ttl)
		doc.ExpiresAt = &exp
	}
	if err := docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type ingestOutput struct {
	DocumentID uint `json:"documentId"`
	*pipeline.ProcessResult
}

func newIngestOutput(documentID uint, res *pipeline.ProcessResult) ingestOutput {
	return ingestOutput{DocumentID: documentID, ProcessResult: res}
}

func init() {
	ingestCmd.Flags().UintVar(&ingestFlags.agentID, "agent", 0, "文档所属 agent ID")
	ingestCmd.Flags().UintVar(&ingestFlags.documentID, "document", 0, "复用已有文档 ID（重新入库）")
	ingestCmd.Flags().BoolVar(&ingestFlags.vision, "vision", false, "结构分析推荐时执行视觉分析")
	ingestCmd.Flags().DurationVar(&ingestFlags.ttl, "ttl", 0, "新建文档的有效期，例如 72h")
	rootCmd.AddCommand(ingestCmd)
}
