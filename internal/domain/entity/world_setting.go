package entity

import "time"

// SettingCategory 世界观设定分类
type SettingCategory string

const (
	SettingCategoryPowerSystem  SettingCategory = "power_system"
	SettingCategoryItem         SettingCategory = "item"
	SettingCategoryLocation     SettingCategory = "location"
	SettingCategoryGeography    SettingCategory = "geography"
	SettingCategoryOrganization SettingCategory = "organization"
	SettingCategoryRule         SettingCategory = "rule"
	SettingCategoryOther        SettingCategory = "other"
)

// Label 分类中文名
func (c SettingCategory) Label() string {
	switch c {
	case SettingCategoryPowerSystem:
		return "力量体系"
	case SettingCategoryItem:
		return "物品道具"
	case SettingCategoryLocation, SettingCategoryGeography:
		return "地点场景"
	case SettingCategoryOrganization:
		return "组织势力"
	case SettingCategoryRule:
		return "世界规则"
	default:
		return "其他设定"
	}
}

// IsPlace 是否为地点类设定
func (c SettingCategory) IsPlace() bool {
	return c == SettingCategoryLocation || c == SettingCategoryGeography
}

// WorldSetting 世界观设定只读视图
type WorldSetting struct {
	ID        string          `json:"id" gorm:"type:uuid;primaryKey"`
	BookID    string          `json:"book_id" gorm:"type:uuid;index;not null"`
	Category  SettingCategory `json:"category" gorm:"type:varchar(32);index"`
	Name      string          `json:"name" gorm:"type:varchar(255)"`
	Content   string          `json:"content" gorm:"type:text"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (WorldSetting) TableName() string {
	return "world_settings"
}
