package entity

import (
	"time"

	"github.com/lib/pq"
)

// CharacterType 角色类型
type CharacterType string

const (
	CharacterTypeProtagonist CharacterType = "protagonist"
	CharacterTypeSupporting  CharacterType = "supporting"
	CharacterTypeAntagonist  CharacterType = "antagonist"
	CharacterTypeOther       CharacterType = "other"
)

// Label 角色类型的中文名
func (t CharacterType) Label() string {
	switch t {
	case CharacterTypeProtagonist:
		return "主角"
	case CharacterTypeSupporting:
		return "配角"
	case CharacterTypeAntagonist:
		return "反派"
	default:
		return "其他"
	}
}

// CharacterProfile 角色设定
type CharacterProfile struct {
	Personality string `json:"personality,omitempty"`
	Goals       string `json:"goals,omitempty"`
	Background  string `json:"background,omitempty"`
	Abilities   string `json:"abilities,omitempty"`
}

// Character 角色只读视图
type Character struct {
	ID        string            `json:"id" gorm:"type:uuid;primaryKey"`
	BookID    string            `json:"book_id" gorm:"type:uuid;index;not null"`
	Name      string            `json:"name" gorm:"type:varchar(100);not null"`
	Aliases   pq.StringArray    `json:"aliases,omitempty" gorm:"type:text[]"`
	Type      CharacterType     `json:"type" gorm:"type:varchar(32)"`
	Profile   *CharacterProfile `json:"profile,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Character) TableName() string {
	return "characters"
}

// Names 返回本名与全部别名
func (c *Character) Names() []string {
	names := make([]string, 0, len(c.Aliases)+1)
	if c.Name != "" {
		names = append(names, c.Name)
	}
	for _, a := range c.Aliases {
		if a != "" && a != c.Name {
			names = append(names, a)
		}
	}
	return names
}

// HasName 名字是否为本名或已登记别名
func (c *Character) HasName(name string) bool {
	for _, n := range c.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// CharacterIndex 按名字与 ID 查找角色
type CharacterIndex struct {
	byName map[string]*Character
	byID   map[string]*Character
}

// NewCharacterIndex 构建角色索引，本名优先于别名
func NewCharacterIndex(characters []*Character) *CharacterIndex {
	idx := &CharacterIndex{
		byName: make(map[string]*Character),
		byID:   make(map[string]*Character, len(characters)),
	}
	for _, c := range characters {
		idx.byID[c.ID] = c
		for _, alias := range c.Aliases {
			if _, ok := idx.byName[alias]; !ok && alias != "" {
				idx.byName[alias] = c
			}
		}
	}
	for _, c := range characters {
		if c.Name != "" {
			idx.byName[c.Name] = c
		}
	}
	return idx
}

// ByName 按本名或别名查找
func (i *CharacterIndex) ByName(name string) *Character {
	return i.byName[name]
}

// ByID 按 ID 查找
func (i *CharacterIndex) ByID(id string) *Character {
	return i.byID[id]
}

// Resolve 将名字或 ID 解析为角色 ID，无法识别时返回空串
func (i *CharacterIndex) Resolve(nameOrID string) string {
	if c := i.byID[nameOrID]; c != nil {
		return c.ID
	}
	if c := i.byName[nameOrID]; c != nil {
		return c.ID
	}
	return ""
}

// DisplayName 返回角色本名，未知 ID 原样返回
func (i *CharacterIndex) DisplayName(id string) string {
	if c := i.byID[id]; c != nil {
		return c.Name
	}
	return id
}
