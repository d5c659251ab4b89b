package review

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"novel-memory-api/internal/application/memory"
	"novel-memory-api/internal/domain/entity"
)

// 确定性规则的置信度
const (
	deathConfidence      = 0.95
	nameConfidence       = 0.80
	powerConfidence      = 0.85
	timelineConfidence   = 0.85
	locationConfidence   = 0.80
	foreshadowConfidence = 0.90
)

const (
	flashbackWindow = 100
	excerptRunes    = 20
	nameProximity   = 100
	powerLookahead  = 20
)

var (
	deathKeywords     = []string{"死亡", "战死", "身亡", "阵亡", "牺牲", "去世", "殒命", "丧命", "陨落", "被杀"}
	reviveKeywords    = []string{"复活", "死而复生", "起死回生", "还魂"}
	flashbackKeywords = []string{"回忆", "想起", "记得", "从前", "当年", "那时", "梦见", "梦中", "梦里", "恍惚"}
	actionVerbs       = "说|道|想|走|跑|站|坐|躺|看|听|问|答|笑|哭|喊|叫|来|去|回|打|杀|挥|举|拿|放|吃|喝|睡|醒"

	regressionWords   = []string{"跌落", "跌境", "修为尽失", "废去", "封印", "压制", "伪装", "隐藏", "当年", "曾经", "回忆"}
	movementWords     = []string{"到达", "抵达", "来到", "进入", "离开", "前往", "赶到", "回到", "飞到", "传送", "赶往", "返回", "走进", "走出"}
	simultaneousWords = []string{"与此同时", "同时", "此时", "这时", "正当", "就在"}
	futureWords       = []string{"即将", "将要", "尚未", "还没有"}

	ladderSeparators = regexp.MustCompile(`→|->|>|、|，|,|\||\n`)
)

// runeIndexAll 返回 sub 在 s 中所有不重叠出现位置的 rune 偏移
func runeIndexAll(s, sub string) []int {
	if sub == "" {
		return nil
	}
	var out []int
	base, runeBase := 0, 0
	for {
		i := strings.Index(s[base:], sub)
		if i < 0 {
			return out
		}
		runeBase += utf8.RuneCountInString(s[base : base+i])
		out = append(out, runeBase)
		base += i + len(sub)
		runeBase += utf8.RuneCountInString(sub)
	}
}

// paragraphAt rune 偏移所在的段落序号
func paragraphAt(runes []rune, offset int) int {
	n := 0
	for i := 0; i < offset && i < len(runes); i++ {
		if runes[i] == '\n' {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// 角色生死冲突

type deathRecord struct {
	order     int
	chapterID string
	eventID   string
}

type aliveMark struct {
	characterID string
	alive       bool
	rec         deathRecord
}

type deathRule struct{ ruleMeta }

func newDeathRule() Rule {
	return &deathRule{ruleMeta{
		typ:         entity.ReviewTypeCharacterDeathConflict,
		title:       "角色生死冲突检测",
		description: "检测已死亡的角色在后续章节中出现活动描写",
		priority:    10,
	}}
}

func parseAlive(v string) (alive bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "dead", "死亡", "已死亡", "否":
		return false, true
	case "true", "alive", "存活", "复活", "是":
		return true, true
	}
	return false, false
}

// eventMentions 事件文本中是否以角色为主语出现关键词；只涉及一个角色时不要求主语
func eventMentions(c *entity.Character, text string, sole bool, keywords []string) bool {
	if !containsAny(text, keywords) {
		return false
	}
	if sole {
		return true
	}
	for _, name := range c.Names() {
		for _, kw := range keywords {
			if strings.Contains(text, name+kw) {
				return true
			}
		}
	}
	return false
}

// deadCharacters 本章之前已死亡且未复活的角色，值为最近一次死亡记录
func deadCharacters(rc *memory.ReviewContext) map[string]deathRecord {
	type ordered struct {
		order int
		kind  int
		mark  aliveMark
	}
	var marks []ordered
	for _, c := range rc.StateChanges {
		if c.Field != entity.StateFieldIsAlive || c.ChapterOrder >= rc.Chapter.OrderNum {
			continue
		}
		alive, ok := parseAlive(c.NewValue)
		if !ok {
			continue
		}
		marks = append(marks, ordered{order: c.ChapterOrder, kind: 1, mark: aliveMark{
			characterID: c.CharacterID,
			alive:       alive,
			rec:         deathRecord{order: c.ChapterOrder, chapterID: c.ChapterID},
		}})
	}
	for _, e := range rc.Events {
		if e.ChapterOrder >= rc.Chapter.OrderNum {
			continue
		}
		text := e.Title + " " + e.Description + " " + e.Impact
		sole := len(e.InvolvedCharacters) == 1
		for _, id := range e.InvolvedCharacters {
			c := rc.Index.ByID(id)
			if c == nil {
				continue
			}
			rec := deathRecord{order: e.ChapterOrder, chapterID: e.ChapterID, eventID: e.ID}
			switch {
			case eventMentions(c, text, sole, reviveKeywords):
				marks = append(marks, ordered{order: e.ChapterOrder, kind: 2, mark: aliveMark{characterID: id, alive: true, rec: rec}})
			case eventMentions(c, text, sole, deathKeywords):
				marks = append(marks, ordered{order: e.ChapterOrder, kind: 0, mark: aliveMark{characterID: id, rec: rec}})
			}
		}
	}
	sort.SliceStable(marks, func(i, j int) bool {
		if marks[i].order != marks[j].order {
			return marks[i].order < marks[j].order
		}
		return marks[i].kind < marks[j].kind
	})

	dead := make(map[string]deathRecord)
	for _, m := range marks {
		if m.mark.alive {
			delete(dead, m.mark.characterID)
			continue
		}
		if _, already := dead[m.mark.characterID]; !already {
			dead[m.mark.characterID] = m.mark.rec
		}
	}
	return dead
}

func inFlashback(runes []rune, start, end int) bool {
	return containsAny(runeWindow(runes, start, end, flashbackWindow, flashbackWindow), flashbackKeywords)
}

// Check 每个已死亡角色至多报告一次
func (r *deathRule) Check(_ context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	if !rc.Chapter.HasContent() {
		return nil, nil
	}
	dead := deadCharacters(rc)
	if len(dead) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(dead))
	for id := range dead {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	content := rc.Chapter.Content
	runes := []rune(content)
	var issues []*entity.ReviewIssue
	for _, id := range ids {
		c := rc.Index.ByID(id)
		if c == nil {
			continue
		}
		rec := dead[id]
		if issue := r.findActivity(rc, c, rec, content, runes); issue != nil {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

func (r *deathRule) findActivity(rc *memory.ReviewContext, c *entity.Character, rec deathRecord, content string, runes []rune) *entity.ReviewIssue {
	for _, name := range c.Names() {
		re := regexp.MustCompile(regexp.QuoteMeta(name) + "(?:" + actionVerbs + ")")
		for _, loc := range re.FindAllStringIndex(content, -1) {
			start := utf8.RuneCountInString(content[:loc[0]])
			end := start + utf8.RuneCountInString(content[loc[0]:loc[1]])
			if inFlashback(runes, start, end) {
				continue
			}
			issue := r.newIssue(rc,
				"角色生死冲突："+c.Name,
				fmt.Sprintf("角色「%s」在第%d章已死亡，但在当前章节（第%d章）中出现活动描写。", c.Name, rec.order, rc.Chapter.OrderNum),
				deathConfidence,
			)
			issue.Location = &entity.IssueLocation{
				Paragraph:     entity.IntPtr(paragraphAt(runes, start)),
				OriginalText:  runeWindow(runes, start, end, excerptRunes, excerptRunes),
				CharacterName: c.Name,
			}
			issue.Reference = &entity.IssueReference{
				ChapterID:    rec.chapterID,
				ChapterOrder: entity.IntPtr(rec.order),
				EventID:      rec.eventID,
				Text:         fmt.Sprintf("第%d章死亡", rec.order),
			}
			issue.Suggestion = "请确认该角色是否确已死亡，或将相关描写改为回忆、梦境等场景"
			return issue
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// 称呼不一致

type nameRule struct{ ruleMeta }

func newNameRule() Rule {
	return &nameRule{ruleMeta{
		typ:         entity.ReviewTypeNameInconsistency,
		title:       "称呼不一致检测",
		description: "检测同一角色在相近位置混用多个称呼",
		priority:    20,
	}}
}

type nameHit struct {
	name   string
	offset int
}

// nameHits 长名优先匹配，被长名覆盖的短别名不重复计数
func nameHits(content string, names []string) []nameHit {
	sorted := append([]string(nil), names...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})
	covered := make(map[int]struct{})
	var hits []nameHit
	for _, name := range sorted {
		n := utf8.RuneCountInString(name)
		for _, off := range runeIndexAll(content, name) {
			if _, ok := covered[off]; ok {
				continue
			}
			for k := 0; k < n; k++ {
				covered[off+k] = struct{}{}
			}
			hits = append(hits, nameHit{name: name, offset: off})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })
	return hits
}

func (r *nameRule) Check(_ context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	if !rc.Chapter.HasContent() {
		return nil, nil
	}
	content := rc.Chapter.Content
	runes := []rune(content)
	var issues []*entity.ReviewIssue
	for _, c := range rc.Characters {
		names := c.Names()
		if len(names) < 2 {
			continue
		}
		hits := nameHits(content, names)
		used := make(map[string]struct{})
		for _, h := range hits {
			used[h.name] = struct{}{}
		}
		if len(used) < 2 {
			continue
		}
		first, second, ok := closeMixedPair(hits)
		if !ok {
			continue
		}
		var usedNames []string
		for _, n := range names {
			if _, ok := used[n]; ok {
				usedNames = append(usedNames, n)
			}
		}
		issue := r.newIssue(rc,
			"称呼使用混乱："+c.Name,
			fmt.Sprintf("角色「%s」在本章中使用了多个不同的称呼：%s。「%s」和「%s」在相近位置出现，可能导致读者困惑。",
				c.Name, strings.Join(usedNames, "、"), first.name, second.name),
			nameConfidence,
		)
		end := second.offset + utf8.RuneCountInString(second.name)
		issue.Location = &entity.IssueLocation{
			Paragraph:     entity.IntPtr(paragraphAt(runes, first.offset)),
			OriginalText:  clip(runeWindow(runes, first.offset, end, 0, 0), 200),
			CharacterName: c.Name,
		}
		issue.Suggestion = "建议在同一场景中保持称呼一致，或在切换称呼时给出明确的过渡"
		issues = append(issues, issue)
	}
	return issues, nil
}

// closeMixedPair 找出第一对距离小于 nameProximity 的不同称呼
func closeMixedPair(hits []nameHit) (nameHit, nameHit, bool) {
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits) && hits[j].offset-hits[i].offset < nameProximity; j++ {
			if hits[j].name != hits[i].name {
				return hits[i], hits[j], true
			}
		}
	}
	return nameHit{}, nameHit{}, false
}

// ---------------------------------------------------------------------------
// 境界冲突

type powerRule struct{ ruleMeta }

func newPowerRule() Rule {
	return &powerRule{ruleMeta{
		typ:         entity.ReviewTypePowerLevelConflict,
		title:       "境界冲突检测",
		description: "检测角色表现出的境界低于已记录境界且无跌境说明",
		priority:    30,
	}}
}

type ladderRank struct {
	ladder int
	rank   int
}

// powerLadders 从力量体系设定中解析境界序列，设定内容按分隔符从低到高列出
func powerLadders(settings []*entity.WorldSetting) (map[string]ladderRank, [][]string) {
	ranks := make(map[string]ladderRank)
	var ladders [][]string
	for _, s := range settings {
		if s.Category != entity.SettingCategoryPowerSystem {
			continue
		}
		var levels []string
		for _, part := range ladderSeparators.Split(s.Content, -1) {
			if part = strings.TrimSpace(part); part != "" {
				levels = append(levels, part)
			}
		}
		if len(levels) < 2 {
			continue
		}
		for i, l := range levels {
			if _, ok := ranks[l]; !ok {
				ranks[l] = ladderRank{ladder: len(ladders), rank: i}
			}
		}
		ladders = append(ladders, levels)
	}
	return ranks, ladders
}

func (r *powerRule) Check(_ context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	if !rc.Chapter.HasContent() {
		return nil, nil
	}
	ranks, ladders := powerLadders(rc.Settings)
	if len(ladders) == 0 {
		return nil, nil
	}
	var issues []*entity.ReviewIssue
	for _, c := range rc.Characters {
		state := rc.StateBefore(c.ID)
		recorded := state.Fields[entity.StateFieldPower]
		rec, ok := ranks[recorded]
		if !ok {
			continue
		}
		lower := ladders[rec.ladder][:rec.rank]
		if len(lower) == 0 {
			continue
		}
		if issue := r.findRegression(rc, c, recorded, state.ChangedAt[entity.StateFieldPower], lower); issue != nil {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

func (r *powerRule) findRegression(rc *memory.ReviewContext, c *entity.Character, recorded string, since int, lower []string) *entity.ReviewIssue {
	var found *entity.ReviewIssue
	scanParagraphs(rc.Chapter, func(index int, text string, offset int) bool {
		if containsAny(text, regressionWords) || strings.Contains(text, recorded) {
			return true
		}
		runes := []rune(text)
		for _, name := range c.Names() {
			n := utf8.RuneCountInString(name)
			for _, off := range runeIndexAll(text, name) {
				window := runeWindow(runes, off, off+n, 0, powerLookahead)
				for _, level := range lower {
					if !strings.Contains(window, level) {
						continue
					}
					found = r.newIssue(rc,
						"境界冲突："+c.Name,
						fmt.Sprintf("角色「%s」自第%d章起境界为「%s」，本章却表现为「%s」，且没有跌境或压制修为的说明。", c.Name, since, recorded, level),
						powerConfidence,
					)
					found.Location = &entity.IssueLocation{
						Paragraph:     entity.IntPtr(index),
						OriginalText:  clip(text, 200),
						CharacterName: c.Name,
					}
					found.Reference = &entity.IssueReference{
						ChapterOrder: entity.IntPtr(since),
						Text:         "已记录境界：" + recorded,
					}
					found.Suggestion = "请核对角色当前境界，或补充境界跌落的原因"
					return false
				}
			}
		}
		return true
	})
	return found
}

// ---------------------------------------------------------------------------
// 地点冲突

type locationRule struct{ ruleMeta }

func newLocationRule() Rule {
	return &locationRule{ruleMeta{
		typ:         entity.ReviewTypeLocationConflict,
		title:       "地点冲突检测",
		description: "检测角色在缺少移动描写的情况下出现在不同地点",
		priority:    90,
	}}
}

type placeMention struct {
	paragraph int
	offset    int
	place     string
	text      string
}

// knownPlaces 地点类设定与事件地点，长名在前
func knownPlaces(rc *memory.ReviewContext) []string {
	set := make(map[string]struct{})
	for _, s := range rc.Settings {
		if s.Category.IsPlace() && strings.TrimSpace(s.Name) != "" {
			set[strings.TrimSpace(s.Name)] = struct{}{}
		}
	}
	for _, e := range rc.Events {
		if loc := strings.TrimSpace(e.Location); loc != "" {
			set[loc] = struct{}{}
		}
	}
	places := make([]string, 0, len(set))
	for p := range set {
		places = append(places, p)
	}
	sort.Slice(places, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(places[i]), utf8.RuneCountInString(places[j])
		if li != lj {
			return li > lj
		}
		return places[i] < places[j]
	})
	return places
}

// lastKnownPlace 本章之前角色最后所在地点：状态记录与事件地点取章节序较大者，同章以状态为准
func lastKnownPlace(rc *memory.ReviewContext, c *entity.Character) (string, int) {
	state := rc.StateBefore(c.ID)
	place, order := state.Fields[entity.StateFieldLocation], state.ChangedAt[entity.StateFieldLocation]
	for _, e := range rc.Events {
		if e.Location == "" || !e.Involves(c.ID) || e.ChapterOrder >= rc.Chapter.OrderNum {
			continue
		}
		if e.ChapterOrder > order || place == "" {
			place, order = strings.TrimSpace(e.Location), e.ChapterOrder
		}
	}
	return place, order
}

func (r *locationRule) Check(_ context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	if !rc.Chapter.HasContent() {
		return nil, nil
	}
	places := knownPlaces(rc)
	if len(places) == 0 {
		return nil, nil
	}
	paragraphs := rc.Chapter.Paragraphs()

	var issues []*entity.ReviewIssue
	for _, c := range rc.Characters {
		mentions := characterPlaces(rc.Chapter, c, places)
		if len(mentions) == 0 {
			continue
		}
		if last, order := lastKnownPlace(rc, c); last != "" {
			first := mentions[0]
			if first.place != last && !movedBetween(paragraphs, 0, first.paragraph) {
				issue := r.newIssue(rc,
					"地点冲突："+c.Name,
					fmt.Sprintf("角色「%s」在第%d章最后位于「%s」，本章直接出现在「%s」，缺少移动说明。", c.Name, order, last, first.place),
					locationConfidence,
				)
				issue.Location = &entity.IssueLocation{
					Paragraph:     entity.IntPtr(first.paragraph),
					OriginalText:  clip(first.text, 200),
					CharacterName: c.Name,
				}
				issue.Reference = &entity.IssueReference{ChapterOrder: entity.IntPtr(order), Text: "上次所在地点：" + last}
				issue.Suggestion = "请补充角色的移动过程，或核对其所在地点"
				issues = append(issues, issue)
			}
		}
		if issue := r.withinChapter(rc, c, mentions, paragraphs); issue != nil {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// characterPlaces 角色与地点同段出现的记录，每段取最长匹配的地点
func characterPlaces(chapter *entity.Chapter, c *entity.Character, places []string) []placeMention {
	var out []placeMention
	scanParagraphs(chapter, func(index int, text string, offset int) bool {
		named := false
		for _, name := range c.Names() {
			if strings.Contains(text, name) {
				named = true
				break
			}
		}
		if !named {
			return true
		}
		for _, p := range places {
			if strings.Contains(text, p) {
				out = append(out, placeMention{paragraph: index, offset: offset, place: p, text: text})
				break
			}
		}
		return true
	})
	return out
}

func movedBetween(paragraphs []string, from, to int) bool {
	for i := max(from, 0); i <= to && i < len(paragraphs); i++ {
		if containsAny(paragraphs[i], movementWords) {
			return true
		}
	}
	return false
}

// withinChapter 相隔不超过两段的两处地点不同且无移动描写
func (r *locationRule) withinChapter(rc *memory.ReviewContext, c *entity.Character, mentions []placeMention, paragraphs []string) *entity.ReviewIssue {
	for i := 0; i+1 < len(mentions); i++ {
		cur, next := mentions[i], mentions[i+1]
		if cur.place == next.place || next.paragraph-cur.paragraph > 2 {
			continue
		}
		if movedBetween(paragraphs, cur.paragraph, next.paragraph) {
			continue
		}
		title, desc := "地点冲突："+c.Name+"位置突变",
			fmt.Sprintf("角色「%s」从「%s」突然出现在「%s」，缺少移动过程的描写。", c.Name, cur.place, next.place)
		if containsAny(next.text, simultaneousWords) {
			title = "地点冲突：" + c.Name + "不可能同时出现"
			desc = fmt.Sprintf("角色「%s」在第%d段位于「%s」，又在第%d段同时出现在「%s」。", c.Name, cur.paragraph+1, cur.place, next.paragraph+1, next.place)
		}
		issue := r.newIssue(rc, title, desc, locationConfidence)
		issue.Location = &entity.IssueLocation{
			Paragraph:     entity.IntPtr(next.paragraph),
			StartOffset:   entity.IntPtr(next.offset),
			EndOffset:     entity.IntPtr(next.offset + utf8.RuneCountInString(next.text)),
			OriginalText:  clip(next.text, 200),
			CharacterName: c.Name,
		}
		issue.Suggestion = "请补充角色的移动过程，或核对其所在地点"
		return issue
	}
	return nil
}

// ---------------------------------------------------------------------------
// 时间线冲突

type timelineRule struct{ ruleMeta }

func newTimelineRule() Rule {
	return &timelineRule{ruleMeta{
		typ:         entity.ReviewTypeTimelineConflict,
		title:       "时间线冲突检测",
		description: "检测正文对已发生事件的先后描述与时间线记录矛盾",
		priority:    95,
	}}
}

type eventMention struct {
	event  *entity.StoryEvent
	offset int
}

func (r *timelineRule) Check(_ context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	if !rc.Chapter.HasContent() || len(rc.Events) == 0 {
		return nil, nil
	}
	var issues []*entity.ReviewIssue
	scanParagraphs(rc.Chapter, func(index int, text string, offset int) bool {
		mentions := mentionedEvents(text, rc.Events)
		for _, m := range mentions {
			if word, ok := describedAsFuture(text, m.event.Title); ok {
				issues = append(issues, r.issue(rc, index, text, offset+m.offset, m.event,
					"时间线冲突：已发生事件被描述为未发生",
					fmt.Sprintf("事件「%s」已在第%d章发生，但本章（第%d章）将其描述为「%s」。", m.event.Title, m.event.ChapterOrder, rc.Chapter.OrderNum, word),
				))
			}
		}
		for i := 0; i+1 < len(mentions); i++ {
			a, b := mentions[i], mentions[i+1]
			if a.event.TimelineOrder <= 0 || b.event.TimelineOrder <= 0 || a.event.TimelineOrder == b.event.TimelineOrder {
				continue
			}
			aEarlier, ok := claimedOrder(text, a.event.Title, b.event.Title)
			if !ok || aEarlier == (a.event.TimelineOrder < b.event.TimelineOrder) {
				continue
			}
			issues = append(issues, r.issue(rc, index, text, offset+a.offset, a.event,
				"时间线冲突：事件先后顺序错误",
				fmt.Sprintf("正文对「%s」与「%s」先后顺序的描述与时间线记录不符。", a.event.Title, b.event.Title),
			))
		}
		return true
	})
	return issues, nil
}

func (r *timelineRule) issue(rc *memory.ReviewContext, paragraph int, text string, offset int, e *entity.StoryEvent, title, desc string) *entity.ReviewIssue {
	issue := r.newIssue(rc, title, desc, timelineConfidence)
	issue.Location = &entity.IssueLocation{
		Paragraph:    entity.IntPtr(paragraph),
		StartOffset:  entity.IntPtr(offset),
		OriginalText: clip(text, 200),
	}
	issue.Reference = &entity.IssueReference{
		ChapterID:    e.ChapterID,
		ChapterOrder: entity.IntPtr(e.ChapterOrder),
		EventID:      e.ID,
		Text:         e.Title,
	}
	issue.Suggestion = "请检查并修正时间描述，确保与故事时间线一致"
	return issue
}

// mentionedEvents 段落中提及的前文事件，按首次出现位置排序
func mentionedEvents(text string, events []*entity.StoryEvent) []eventMention {
	var out []eventMention
	for _, e := range events {
		if utf8.RuneCountInString(e.Title) < 2 {
			continue
		}
		if hits := runeIndexAll(text, e.Title); len(hits) > 0 {
			out = append(out, eventMention{event: e, offset: hits[0]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].offset < out[j].offset })
	return out
}

func describedAsFuture(text, title string) (string, bool) {
	for _, w := range futureWords {
		if strings.Contains(text, w+title) || strings.Contains(text, title+w) {
			return w, true
		}
	}
	return "", false
}

// claimedOrder 判断正文是否声称 a 早于 b；ok=false 表示没有先后描述
func claimedOrder(text, a, b string) (aEarlier bool, ok bool) {
	ia, ib := strings.Index(text, a), strings.Index(text, b)
	if ia < 0 || ib < 0 || ia+len(a) > ib {
		return false, false
	}
	afterA := text[ia+len(a):]
	between := text[ia+len(a) : ib]
	afterB := text[ib+len(b):]
	switch {
	case strings.HasPrefix(afterA, "之后") || strings.HasPrefix(afterA, "以后"):
		return true, true
	case strings.HasPrefix(afterA, "之前") || strings.HasPrefix(afterA, "以前"):
		return false, true
	case strings.HasPrefix(afterB, "之后") || strings.HasPrefix(afterB, "以后"):
		return false, true
	case strings.HasPrefix(afterB, "之前") || strings.HasPrefix(afterB, "以前"):
		return true, true
	case strings.Contains(between, "先于") || strings.Contains(between, "早于"):
		return true, true
	case strings.Contains(between, "晚于"):
		return false, true
	}
	return false, false
}

// ---------------------------------------------------------------------------
// 伏笔遗忘

// 伏笔遗忘阈值（章）
const (
	majorRemindChapters = 15
	majorWarnChapters   = 30
	minorRemindChapters = 30
	minorWarnChapters   = 50
)

type foreshadowRule struct{ ruleMeta }

func newForeshadowRule() Rule {
	return &foreshadowRule{ruleMeta{
		typ:         entity.ReviewTypeForeshadowForgotten,
		title:       "伏笔遗忘检测",
		description: "检测埋设已久仍未回收的伏笔，重要伏笔超期升级为警告",
		priority:    60,
	}}
}

func (r *foreshadowRule) Check(_ context.Context, rc *memory.ReviewContext) ([]*entity.ReviewIssue, error) {
	var issues []*entity.ReviewIssue
	for _, f := range rc.Foreshadows {
		if !f.Status.IsOpen() {
			continue
		}
		age := rc.Chapter.OrderNum - f.PlantedChapter
		level, ok := forgottenLevel(f.Importance, age)
		if !ok {
			continue
		}
		issue := r.newIssue(rc,
			"伏笔待回收："+f.Title,
			fmt.Sprintf("伏笔「%s」于第%d章埋设，已过%d章仍未回收。重要性：%s，当前状态：%s。",
				f.Title, f.PlantedChapter, age, importanceText(f.Importance), statusText(f.Status)),
			foreshadowConfidence,
		)
		issue.Level = level
		issue.Reference = &entity.IssueReference{
			ChapterID:    f.PlantedChapterID,
			ChapterOrder: entity.IntPtr(f.PlantedChapter),
			ForeshadowID: f.ID,
			Text:         f.ExpectedResolve,
		}
		suggestion := "建议在近期章节中安排回收此伏笔"
		if f.ExpectedResolve != "" {
			suggestion += "。原计划回收点：" + f.ExpectedResolve
		}
		if age > majorWarnChapters {
			suggestion += "。如果决定不再使用此伏笔，建议将其标记为废弃"
		}
		issue.Suggestion = suggestion
		issues = append(issues, issue)
	}
	return issues, nil
}

// forgottenLevel subtle 伏笔不提醒
func forgottenLevel(importance entity.ForeshadowImportance, age int) (entity.ReviewLevel, bool) {
	switch importance {
	case entity.ForeshadowImportanceMajor:
		if age >= majorWarnChapters {
			return entity.ReviewLevelWarning, true
		}
		if age >= majorRemindChapters {
			return entity.ReviewLevelSuggestion, true
		}
	case entity.ForeshadowImportanceMinor:
		if age >= minorWarnChapters {
			return entity.ReviewLevelWarning, true
		}
		if age >= minorRemindChapters {
			return entity.ReviewLevelSuggestion, true
		}
	}
	return "", false
}

func importanceText(i entity.ForeshadowImportance) string {
	switch i {
	case entity.ForeshadowImportanceMajor:
		return "重大"
	case entity.ForeshadowImportanceMinor:
		return "次要"
	case entity.ForeshadowImportanceSubtle:
		return "微妙"
	}
	return string(i)
}

func statusText(s entity.ForeshadowStatus) string {
	switch s {
	case entity.ForeshadowStatusPlanted:
		return "已埋设"
	case entity.ForeshadowStatusPartial:
		return "部分回收"
	case entity.ForeshadowStatusResolved:
		return "已回收"
	case entity.ForeshadowStatusAbandoned:
		return "已废弃"
	}
	return string(s)
}
