package node

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"novel-memory-api/internal/domain/entity"
)

// BuildCharacterRoster 角色名册：本名、别名与类型，供抽取与审查提示词使用
func BuildCharacterRoster(characters []*entity.Character) string {
	if len(characters) == 0 {
		return "（暂无已登记角色）"
	}
	lines := make([]string, 0, len(characters))
	for _, c := range characters {
		line := fmt.Sprintf("- %s（%s）", c.Name, c.Type.Label())
		if len(c.Aliases) > 0 {
			line += "，别名：" + strings.Join(c.Aliases, "、")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// BuildCharacterProfiles 角色性格与能力设定
func BuildCharacterProfiles(characters []*entity.Character) string {
	lines := make([]string, 0, len(characters))
	for _, c := range characters {
		if c.Profile == nil {
			continue
		}
		var parts []string
		if p := strings.TrimSpace(c.Profile.Personality); p != "" {
			parts = append(parts, "性格："+p)
		}
		if a := strings.TrimSpace(c.Profile.Abilities); a != "" {
			parts = append(parts, "能力："+a)
		}
		if g := strings.TrimSpace(c.Profile.Goals); g != "" {
			parts = append(parts, "目标："+g)
		}
		if len(parts) == 0 {
			continue
		}
		lines = append(lines, "- "+c.Name+"："+strings.Join(parts, "；"))
	}
	if len(lines) == 0 {
		return "（暂无角色设定）"
	}
	return strings.Join(lines, "\n")
}

// BuildSettingsBlock 世界观设定，按分类分组
func BuildSettingsBlock(settings []*entity.WorldSetting) string {
	if len(settings) == 0 {
		return "（暂无世界观设定）"
	}
	ordered := slices.Clone(settings)
	slices.SortStableFunc(ordered, func(a, b *entity.WorldSetting) int {
		return cmp.Compare(a.Category, b.Category)
	})

	var b strings.Builder
	var last entity.SettingCategory
	for i, s := range ordered {
		if i == 0 || s.Category != last {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("【" + s.Category.Label() + "】\n")
			last = s.Category
		}
		b.WriteString("- " + s.Name + "：" + strings.TrimSpace(s.Content) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
