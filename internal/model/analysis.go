package model

// 视觉分析推荐等级。
const (
	RecommendationUnnecessary       = "unnecessary"
	RecommendationOptional          = "optional"
	RecommendationRecommended       = "recommended"
	RecommendationHighlyRecommended = "highly_recommended"
)

// StructureAnalysis 是文档结构分析的结果，挂在 Document 上，重新提取文本时重新计算。
type StructureAnalysis struct {
	DiagramCount        float64        `json:"diagramCount"`
	VisionScore         float64        `json:"visionScore"`
	RecommendationLevel string         `json:"recommendationLevel"`
	RecommendVision     bool           `json:"recommendVision"`
	EstimatedCost       float64        `json:"estimatedCost"`
	Reasons             []string       `json:"reasons"`
	AvgCharsPerPage     float64        `json:"avgCharsPerPage"`
	CategoryHits        map[string]int `json:"categoryHits,omitempty"`
	DominantCategory    string         `json:"dominantCategory,omitempty"`
}

// ExtractionMetadata 是提取服务返回的元数据中与结构分析相关的部分。
type ExtractionMetadata struct {
	TotalPages int               `json:"total_pages"`
	OCRUsed    bool              `json:"ocr_used"`
	OCRPages   int               `json:"ocr_pages"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ExtractedTable 是从文本中识别出的表格。
type ExtractedTable struct {
	ID      string     `json:"id"`
	Format  string     `json:"format"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"data"`
}

// ExtractedImage 是文档中嵌入的图片，Path 为落地后的本地路径。
type ExtractedImage struct {
	Path string `json:"path"`
	Page int    `json:"page"`
}

// ExtractionResult 对应提取服务的返回 {text, tables, images, formulas, metadata}。
type ExtractionResult struct {
	Text     string             `json:"text"`
	Tables   []ExtractedTable   `json:"tables"`
	Images   []ExtractedImage   `json:"images"`
	Formulas []string           `json:"formulas"`
	Metadata ExtractionMetadata `json:"metadata"`
}
