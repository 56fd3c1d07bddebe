package render

import "unicode/utf8"

const ellipsis = "..."

// textUnit 构造文本类单元, 超过 limit 个字符时截断并标记可展开。
func textUnit(key string, kind UnitKind, text string, limit int) Unit {
	u := Unit{Key: key, Kind: kind, Text: text, FullLength: utf8.RuneCountInString(text)}
	if limit > 0 && u.FullLength > limit {
		u.Text = truncateRunes(text, limit) + ellipsis
		u.Full = text
		u.Truncated = true
		u.Expandable = true
	}
	return u
}

// truncateRunes 按字符 (非字节) 截取前 n 个。
func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
