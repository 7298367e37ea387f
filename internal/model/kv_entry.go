package model

import "time"

// KVEntry 对应 MySQL 中的 'kv_entries' 表，每个键保存一段序列化后的值。
type KVEntry struct {
	Key       string    `gorm:"type:varchar(191);primaryKey" json:"key"`
	Value     string    `gorm:"type:longtext;not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (KVEntry) TableName() string {
	return "kv_entries"
}
