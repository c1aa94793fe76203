// Package main 是 ragctl 命令行工具的入口点。
package main

import "canon-rag-go/internal/cli"

func main() {
	cli.Execute()
}
