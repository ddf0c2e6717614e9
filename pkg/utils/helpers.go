package utils

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// StringPtr 返回字符串的指针
func StringPtr(s string) *string {
	return &s
}

// TimePtr 返回time.Time的指针，零值时间返回nil
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// IntPtr 返回int的指针
func IntPtr(i int) *int {
	return &i
}

// CalculateMD5 计算字节切片的MD5哈希值
func CalculateMD5(data []byte) string {
	hasher := md5.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ConvertArrayToJSON 辅助函数: 将字符串数组转换为JSON
func ConvertArrayToJSON(arr []string) datatypes.JSON {
	if len(arr) == 0 {
		return datatypes.JSON("[]")
	}

	jsonBytes, err := json.Marshal(arr)
	if err != nil {
		// 对于简单数组的序列化失败，返回空JSON数组作为安全默认值
		return datatypes.JSON("[]")
	}

	return datatypes.JSON(jsonBytes)
}

// ConvertStructToJSON 将任意结构体转换为JSON列类型，失败时返回空对象
func ConvertStructToJSON(v interface{}) datatypes.JSON {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(jsonBytes)
}
