package translator

import (
	"fmt"
	"strings"
)

// systemPrompt is the base instruction set for the translation model. The
// output contract is bilingual: each source paragraph quoted with "> ",
// followed by its translation.
const systemPrompt = `你是一位专业的翻译专家，专注于产出高质量的译文。

## 翻译原则
1. 准确性：忠实于原文含义，不遗漏、不曲解、不添加
2. 流畅性：译文符合目标语言的表达习惯，避免翻译腔
3. 一致性：术语翻译前后一致，风格统一
4. 完整性：保留原文的段落结构和格式标记

## 输出格式要求
以段落交替的双语格式输出：
- 原文段落以 "> " 开头（Markdown 引用格式）
- 译文段落紧随其后，正常输出
- 段落之间用空行分隔

## 特殊处理规则
1. 代码块保持原样，不翻译代码内容
2. 链接保留原始 URL，可翻译链接文本
3. 专有名词首次出现时可标注原文
4. 标点符号使用目标语言的习惯用法`

var domainModifiers = map[string]string{
	"tech": `你正在翻译技术/编程领域的内容：
- 代码块、变量名、函数名、类名保持原文，注释可翻译
- 常见术语使用业界通用译法，首次出现可标注原文，如：容器（Container）
- 保留 Markdown 格式、代码块语言标记和列表结构`,
	"business": `你正在翻译商务/金融领域的内容：
- 金融缩写保留原文并首次标注译名，如：ROI（投资回报率）
- 货币符号、数值、百分比保持原格式
- 使用正式、客观的商务用语，避免口语化表达`,
	"academic": `你正在翻译学术研究领域的内容：
- 保持学术写作的严谨性和客观性
- 准确传达研究方法、数据和结论
- 文献引用、作者名和期刊名保持原文`,
}

// buildSystemPrompt appends the domain-specific instructions, if any.
func buildSystemPrompt(domain string) string {
	modifier, ok := domainModifiers[domain]
	if !ok {
		return systemPrompt
	}
	return systemPrompt + "\n\n## 领域特定要求\n" + modifier
}

// buildChunkPrompt renders the per-chunk task prompt. For chunks past the
// first, the tail of the previous translation is included so the model can
// keep terminology and tone consistent.
func buildChunkPrompt(text, precedingContext, sourceLang, targetLang string, index, total int) string {
	var b strings.Builder

	if total > 1 {
		fmt.Fprintf(&b, "请继续翻译以下内容（这是长文的第 %d/%d 部分）。\n\n", index+1, total)
	} else {
		b.WriteString("请翻译以下内容。\n\n")
	}

	fmt.Fprintf(&b, "## 语言\n源语言：%s\n目标语言：%s\n\n", langName(sourceLang), langName(targetLang))

	if precedingContext != "" {
		b.WriteString("## 前文译文结尾（保持风格和术语一致）\n")
		b.WriteString(precedingContext)
		b.WriteString("\n\n")
	}

	b.WriteString("## 待翻译内容\n")
	b.WriteString(text)
	b.WriteString("\n\n请按照双语格式开始翻译：")
	return b.String()
}

func langName(code string) string {
	switch code {
	case "en":
		return "英文"
	case "zh":
		return "简体中文"
	case "ja":
		return "日文"
	case "ko":
		return "韩文"
	case "fr":
		return "法文"
	case "de":
		return "德文"
	case "es":
		return "西班牙文"
	case "":
		return "自动检测"
	default:
		return code
	}
}
