// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// Chapter 章节只读视图，正文与排序由书籍/章节存储维护
type Chapter struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	BookID    string    `json:"book_id" gorm:"type:uuid;index;not null"`
	Title     string    `json:"title" gorm:"type:varchar(255)"`
	Content   string    `json:"content,omitempty" gorm:"type:text"`
	OrderNum  int       `json:"order_num" gorm:"column:order_num;not null"`
	WordCount int       `json:"word_count" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Chapter) TableName() string {
	return "chapters"
}

// HasContent 章节是否有可抽取的正文
func (c *Chapter) HasContent() bool {
	return c != nil && strings.TrimSpace(c.Content) != ""
}

// Paragraphs 按换行切分段落，保留空段以维持段落序号
func (c *Chapter) Paragraphs() []string {
	if c == nil || c.Content == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(c.Content, "\r\n", "\n"), "\n")
}
