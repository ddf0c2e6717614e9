package storage

import "time"

// ResumeUploadedMessage 简历上传消息，由上传接口发布、后台消费者处理
type ResumeUploadedMessage struct {
	UserID           string    `json:"user_id"`                 // 用户ID
	UploadTimestamp  time.Time `json:"upload_timestamp"`        // 上传时间戳
	OriginalFilename string    `json:"original_filename"`       // 原始文件名
	ResumeObjectKey  string    `json:"resume_object_key"`       // MinIO中的对象键
	RawFileMD5       string    `json:"raw_file_md5,omitempty"`  // 原始文件的MD5，用于失败时回滚去重记录
	PreviewObjectKey string    `json:"preview_object_key,omitempty"` // 预览图对象键，缺省表示没有视觉轨道输入
	PreferencesJSON  string    `json:"preferences_json,omitempty"`   // 求职偏好JSON快照
	ForceRefresh     bool      `json:"force_refresh,omitempty"` // 上传后强制刷新匹配缓存
}
