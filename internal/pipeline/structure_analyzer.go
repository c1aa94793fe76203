package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"unicode"
	"unicode/utf8"

	"canon-rag-go/internal/config"
	"canon-rag-go/internal/model"
)

const (
	sparseDensity     = 300.0
	lowDensity        = 600.0
	ocrScore          = 6.0
	occurrencePoints  = 0.8
	occurrenceDiagram = 0.6
	maxVisionScore    = 10.0
)

// DefaultCategories 返回内置的五个视觉内容类别，权重依次为 8/8/7/6/5。
func DefaultCategories() []config.CategoryConfig {
	return []config.CategoryConfig{
		{
			Name: "maps", Label: "地图/交通线路", Weight: 8,
			Keywords: []string{"map", "route", "subway", "metro", "transit", "station", "노선", "지도", "지하철", "환승", "线路图", "地图"},
		},
		{
			Name: "math", Label: "数学/物理公式", Weight: 8,
			Keywords: []string{"equation", "formula", "integral", "derivative", "theorem", "matrix", `\frac`, `\int`, `\sum`, "수식", "방정식", "적분", "미분", "행렬", "公式", "方程"},
		},
		{
			Name: "circuits", Label: "电路/电子", Weight: 7,
			Keywords: []string{"circuit", "resistor", "capacitor", "transistor", "voltage", "schematic", "회로", "저항", "전압", "트랜지스터", "电路", "电阻"},
		},
		{
			Name: "tables", Label: "复杂表格", Weight: 6,
			Keywords: []string{"table", "column", "spreadsheet", "pivot", "테이블", "엑셀", "表格"},
		},
		{
			Name: "diagrams", Label: "图表/示意图", Weight: 5,
			Keywords: []string{"diagram", "chart", "graph", "figure", "flowchart", "그림", "도표", "다이어그램", "그래프", "차트", "示意图", "流程图"},
		},
	}
}

type category struct {
	name     string
	label    string
	weight   float64
	patterns []*regexp.Regexp
}

// StructureAnalyzer 根据文本密度、关键词类别与 OCR 信号判断文档是否需要视觉分析。
// 无状态，可并发使用。
type StructureAnalyzer struct {
	categories   []category
	costPerImage float64
}

// NewStructureAnalyzer 按配置创建分析器，未配置类别时使用 DefaultCategories。
func NewStructureAnalyzer(cfg config.AnalysisConfig) *StructureAnalyzer {
	defs := cfg.Categories
	if len(defs) == 0 {
		defs = DefaultCategories()
	}
	a := &StructureAnalyzer{costPerImage: cfg.CostPerImage}
	for _, d := range defs {
		c := category{name: d.Name, label: d.Label, weight: d.Weight}
		if c.label == "" {
			c.label = d.Name
		}
		for _, kw := range d.Keywords {
			if kw == "" {
				continue
			}
			c.patterns = append(c.patterns, keywordPattern(kw))
		}
		a.categories = append(a.categories, c)
	}
	return a
}

// keywordPattern 编译大小写不敏感的关键词正则。
// 以拉丁字母开头的关键词要求词首边界，避免 "paragraph" 命中 "graph"。
func keywordPattern(kw string) *regexp.Regexp {
	expr := regexp.QuoteMeta(kw)
	if r, _ := utf8.DecodeRuneInString(kw); r < utf8.RuneSelf && unicode.IsLetter(r) {
		expr = `\b` + expr
	}
	return regexp.MustCompile(`(?i)` + expr)
}

var defaultAnalyzer = NewStructureAnalyzer(config.AnalysisConfig{CostPerImage: 0.01})

// AnalyzeDocumentStructure 使用默认参数分析文档结构。
func AnalyzeDocumentStructure(text string, meta model.ExtractionMetadata) model.StructureAnalysis {
	return defaultAnalyzer.Analyze(text, meta)
}

// Analyze 是纯函数，不会失败；没有任何信号时返回零分。
func (a *StructureAnalyzer) Analyze(text string, meta model.ExtractionMetadata) model.StructureAnalysis {
	pages := meta.TotalPages
	if pages < 1 {
		pages = 1
	}
	density := float64(utf8.RuneCountInString(text)) / float64(pages)

	res := model.StructureAnalysis{
		Reasons:         []string{},
		AvgCharsPerPage: math.Round(density*10) / 10,
		CategoryHits:    map[string]int{},
	}
	var diagrams, score float64

	// 1. 文本密度
	switch {
	case density < sparseDensity:
		diagrams += 0.7 * float64(pages)
		score += 8
		res.Reasons = append(res.Reasons, fmt.Sprintf("文本密度很低 (每页约 %.0f 字)，可能以图为主", density))
	case density < lowDensity:
		diagrams += 0.4 * float64(pages)
		score += 5
		res.Reasons = append(res.Reasons, fmt.Sprintf("文本密度偏低 (每页约 %.0f 字)", density))
	}

	// 2. 关键词类别
	best := 0.0
	for _, c := range a.categories {
		occ := 0
		for _, p := range c.patterns {
			occ += len(p.FindAllStringIndex(text, -1))
		}
		if occ == 0 {
			continue
		}
		res.CategoryHits[c.name] = occ
		contribution := math.Min(c.weight, float64(occ)*occurrencePoints)
		score += contribution
		diagrams += float64(occ) * occurrenceDiagram
		if contribution > best {
			best = contribution
			res.DominantCategory = c.name
		}
		res.Reasons = append(res.Reasons, fmt.Sprintf("检测到%s相关关键词 %d 次", c.label, occ))
	}

	// 3. OCR
	if meta.OCRUsed || meta.OCRPages > 0 {
		score += ocrScore
		res.Reasons = append(res.Reasons, "文档经过 OCR 识别，可能包含扫描图像")
	}

	score = math.Max(0, math.Min(maxVisionScore, score))
	res.DiagramCount = round2(diagrams)
	res.VisionScore = round2(score)
	res.RecommendationLevel = recommendationLevel(score)
	res.RecommendVision = score >= 5
	res.EstimatedCost = round4(diagrams * a.costPerImage)
	return res
}

func recommendationLevel(score float64) string {
	switch {
	case score >= 10:
		return model.RecommendationHighlyRecommended
	case score >= 7:
		return model.RecommendationRecommended
	case score >= 4:
		return model.RecommendationOptional
	default:
		return model.RecommendationUnnecessary
	}
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
