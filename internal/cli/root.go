// Package cli 实现 ragctl 的各个子命令：本地分析、入库与检索。
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"canon-rag-go/internal/config"
	"canon-rag-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	conf    config.Config
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "ragctl: 文档入库与混合检索的命令行工具",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		conf = cfg
		if verbose {
			conf.Log.Format = "console"
			conf.Log.Level = "debug"
			return log.Init(conf.Log)
		}
		return nil
	},
}

// Execute 运行根命令，出错时以非零状态退出。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
