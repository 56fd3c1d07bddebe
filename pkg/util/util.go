// Package util 提供通用工具函数。
//
//   - EscapeLike  转义 LIKE 模式
//   - ClampInt    限制整数范围
//   - Env*        读取环境变量 (带默认值/最小值)
//   - LoadFromEnv / ApplyEnvOverrides  基于 struct tag 的配置加载
package util

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/multi-agent/run-transcript/pkg/logger"
)

// EscapeLike 转义 SQL LIKE 模式中的特殊字符 (%, _, \)。
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// ClampInt 将值限制在 [lo, hi] 范围内。
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EnvInt 读取整型环境变量，无效时返回 def，并确保不小于 min。
func EnvInt(name string, def, min int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	return v
}

// EnvFloat 读取浮点型环境变量，无效时返回 def，并确保不小于 min。
func EnvFloat(name string, def, min float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	return v
}

// EnvBool 读取布尔环境变量，无效时返回 def。
// 接受: 1/true/yes/on → true, 0/false/no/off → false。
func EnvBool(name string, def bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// EnvStr 读取字符串环境变量，为空时返回 def。
func EnvStr(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}

// EnvDuration 读取 time.Duration 环境变量 (如 "5s")，无效时返回 def。
func EnvDuration(name string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}

var durationType = reflect.TypeOf(time.Duration(0))

// envField 描述一个带 env tag 的结构体字段。
type envField struct {
	name   string
	def    string
	min    string
	value  reflect.Value
	kind   reflect.Kind
	isTime bool
}

// envFields 遍历 ptr 指向结构体中所有带 env tag 的字段。
func envFields(op string, ptr any) []envField {
	if ptr == nil {
		logger.Error(op + ": ptr must not be nil")
		return nil
	}
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		logger.Error(op + ": ptr must be a non-nil pointer to struct")
		return nil
	}
	v := rv.Elem()
	t := v.Type()

	var out []envField
	for i := range t.NumField() {
		field := t.Field(i)
		envName := field.Tag.Get("env")
		if envName == "" || !field.IsExported() {
			continue
		}
		out = append(out, envField{
			name:   envName,
			def:    field.Tag.Get("default"),
			min:    field.Tag.Get("min"),
			value:  v.Field(i),
			kind:   field.Type.Kind(),
			isTime: field.Type == durationType,
		})
	}
	return out
}

// set 以 fallback 为默认值从环境变量设置字段。
func (f envField) set(fallback string) {
	switch {
	case f.isTime:
		d, _ := time.ParseDuration(fallback)
		f.value.SetInt(int64(EnvDuration(f.name, d)))

	case f.kind == reflect.String:
		f.value.SetString(EnvStr(f.name, fallback))

	case f.kind == reflect.Int:
		defInt, _ := strconv.Atoi(fallback)
		minInt, _ := strconv.Atoi(f.min)
		f.value.SetInt(int64(EnvInt(f.name, defInt, minInt)))

	case f.kind == reflect.Float64:
		defFloat, _ := strconv.ParseFloat(fallback, 64)
		minFloat, _ := strconv.ParseFloat(f.min, 64)
		f.value.SetFloat(EnvFloat(f.name, defFloat, minFloat))

	case f.kind == reflect.Bool:
		defBool := fallback == "true" || fallback == "1" || fallback == "yes"
		f.value.SetBool(EnvBool(f.name, defBool))
	}
}

// current 将字段当前值格式化为字符串, 作为 ApplyEnvOverrides 的回退值。
func (f envField) current() string {
	switch {
	case f.isTime:
		return time.Duration(f.value.Int()).String()
	case f.kind == reflect.String:
		return f.value.String()
	case f.kind == reflect.Int:
		return strconv.FormatInt(f.value.Int(), 10)
	case f.kind == reflect.Float64:
		return strconv.FormatFloat(f.value.Float(), 'f', -1, 64)
	case f.kind == reflect.Bool:
		return strconv.FormatBool(f.value.Bool())
	}
	return ""
}

// LoadFromEnv 通过反射从 struct tag 加载环境变量。
//
// 支持的 tag:
//   - env:"VAR_NAME"   环境变量名
//   - default:"value"  默认值
//   - min:"N"          最小值 (int/float64)
//
// 支持的字段类型: string, int, float64, bool, time.Duration。
func LoadFromEnv(ptr any) {
	for _, f := range envFields("util.LoadFromEnv", ptr) {
		f.set(f.def)
	}
}

// LoadDefaults 仅应用 default tag, 不读取环境变量。
func LoadDefaults(ptr any) {
	for _, f := range envFields("util.LoadDefaults", ptr) {
		setRaw(f, f.def)
	}
}

// ApplyEnvOverrides 只覆盖已设置的环境变量对应字段, 其余字段保持现值。
// 用于 默认值 → 配置文件 → 环境变量 的分层加载。
func ApplyEnvOverrides(ptr any) {
	for _, f := range envFields("util.ApplyEnvOverrides", ptr) {
		if _, ok := os.LookupEnv(f.name); !ok {
			continue
		}
		f.set(f.current())
	}
}

// setRaw 直接解析字符串写入字段, 不查看环境变量。
func setRaw(f envField, raw string) {
	switch {
	case f.isTime:
		d, _ := time.ParseDuration(raw)
		f.value.SetInt(int64(d))
	case f.kind == reflect.String:
		f.value.SetString(raw)
	case f.kind == reflect.Int:
		v, _ := strconv.Atoi(raw)
		f.value.SetInt(int64(v))
	case f.kind == reflect.Float64:
		v, _ := strconv.ParseFloat(raw, 64)
		f.value.SetFloat(v)
	case f.kind == reflect.Bool:
		f.value.SetBool(raw == "true" || raw == "1" || raw == "yes")
	}
}
