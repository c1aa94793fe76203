package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/pipeline"
	"canon-rag-go/pkg/tika"

	"github.com/spf13/cobra"
)

var analyzeTextOnly bool

// analyzeCmd 对单个文件执行结构分析，只依赖 Tika，不写入任何存储。
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "分析文档结构，判断是否值得做视觉分析",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		var text string
		var meta model.ExtractionMetadata
		if analyzeTextOnly {
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			text = string(b)
		} else {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := tika.NewClient(conf.Tika).Extract(cmd.Context(), f, filepath.Base(path))
			if err != nil {
				return fmt.Errorf("提取文本失败: %w", err)
			}
			text, meta = res.Text, res.Metadata
		}
		analysis := pipeline.NewStructureAnalyzer(conf.Analysis).Analyze(text, meta)
		return printJSON(cmd.OutOrStdout(), analysis)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeTextOnly, "text", false, "把文件当作纯文本读取，不调用 Tika")
	rootCmd.AddCommand(analyzeCmd)
}
