package content

import "strings"

const defaultImageMime = "image/png"

// Source 解析图片地址: url → data URI → 占位图。从不失败。
func (img *Image) Source() string {
	if img == nil {
		return PlaceholderImage
	}
	if img.URL != "" {
		return img.URL
	}
	if img.Data != "" {
		if strings.HasPrefix(img.Data, "data:") {
			return img.Data
		}
		return "data:" + img.mime() + ";base64," + img.Data
	}
	return PlaceholderImage
}

// AltText 替代文本, 缺省为 "Image"。
func (img *Image) AltText() string {
	if img == nil || strings.TrimSpace(img.Alt) == "" {
		return DefaultImageAlt
	}
	return img.Alt
}

// mime 声明的编码; "jpeg" 这类短格式补全为 image/jpeg。
func (img *Image) mime() string {
	m := strings.ToLower(strings.TrimSpace(img.MimeType))
	switch {
	case m == "":
		return defaultImageMime
	case strings.Contains(m, "/"):
		return m
	default:
		return "image/" + m
	}
}
