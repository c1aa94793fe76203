package app

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"canon-rag-go/internal/service"
	"canon-rag-go/pkg/log"
)

// SeedDocuments 扫描目录并通过标准上传流程把文件导入到 agentID 名下（按文件名幂等）。
// 返回新导入的文件数。
func SeedDocuments(ctx context.Context, dir string, agentID uint, docs service.DocumentService) int {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("SeedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0
	}
	if agentID == 0 {
		log.Warnf("SeedDocuments: 未配置 seed agent，跳过初始化导入")
		return 0
	}

	existing := map[string]bool{}
	list, err := docs.List(ctx, agentID)
	if err != nil {
		log.Warnf("SeedDocuments: 查询已有文档失败: %v", err)
		return 0
	}
	for _, d := range list {
		existing[d.FileName] = true
	}

	imported := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if existing[name] {
			log.Infof("SeedDocuments: 已存在，跳过: %s", name)
			return nil
		}
		fi, err := d.Info()
		if err != nil || fi.Size() == 0 {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			log.Warnf("SeedDocuments: 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()

		if _, err := docs.Upload(ctx, service.UploadRequest{
			AgentID:  agentID,
			FileName: name,
			Size:     fi.Size(),
			Reader:   f,
		}); err != nil {
			log.Warnf("SeedDocuments: 导入失败: %s, err=%v", path, err)
			return nil
		}
		existing[name] = true
		imported++
		log.Infof("SeedDocuments: 导入完成并已触发入库: %s", name)
		return nil
	})
	if walkErr != nil {
		log.Warnf("SeedDocuments: 遍历目录发生错误: %v", walkErr)
	}
	return imported
}
