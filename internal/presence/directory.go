// Package presence 跟踪每个房间当前连接的参与者及其颜色和显示名称。
package presence

import (
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"collaborative-canvas/internal/domain"
)

// Palette 是服务端分配给新参与者的颜色
var Palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
}

const maxNameLength = 24

var (
	lineBreaks   = regexp.MustCompile(`[\n\r\t]+`)
	multiSpace   = regexp.MustCompile(`\s{2,}`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// Directory 按房间保存参与者，并发安全
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]map[string]domain.Participant
	rnd   *rand.Rand
	rndMu sync.Mutex
	now   func() time.Time
}

func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]map[string]domain.Participant),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

// Add 登记参与者。meta 中的 ID 会被 connID 覆盖，JoinedAt 为空时填当前时间。
func (d *Directory) Add(roomID, connID string, meta domain.Participant) domain.Participant {
	meta.ID = connID
	if meta.JoinedAt.IsZero() {
		meta.JoinedAt = d.now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		room = make(map[string]domain.Participant)
		d.rooms[roomID] = room
	}
	room[connID] = meta
	return meta
}

// Remove 移除参与者，房间为空时一并删除
func (d *Directory) Remove(roomID, connID string) (domain.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := room[connID]
	if !ok {
		return domain.Participant{}, false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(d.rooms, roomID)
	}
	return p, true
}

// List 按加入顺序返回房间内的参与者
func (d *Directory) List(roomID string) []domain.Participant {
	d.mu.RLock()
	room := d.rooms[roomID]
	out := make([]domain.Participant, 0, len(room))
	for _, p := range room {
		out = append(out, p)
	}
	d.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (d *Directory) Get(roomID, connID string) (domain.Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.rooms[roomID][connID]
	return p, ok
}

// Update 合并字段，参与者不存在时返回 false
func (d *Directory) Update(roomID, connID string, fields domain.ParticipantFields) (domain.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := room[connID]
	if !ok {
		return domain.Participant{}, false
	}
	if fields.Name != nil {
		p.Name = *fields.Name
	}
	if fields.Color != nil {
		p.Color = *fields.Color
	}
	room[connID] = p
	return p, true
}

// Count 返回房间内的参与者数量
func (d *Directory) Count(roomID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[roomID])
}

// Rooms 返回有参与者的房间 ID
func (d *Directory) Rooms() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.rooms))
	for id := range d.rooms {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// RandomColor 从调色板中随机选一个颜色
func (d *Directory) RandomColor() string {
	d.rndMu.Lock()
	defer d.rndMu.Unlock()
	return Palette[d.rnd.Intn(len(Palette))]
}

// DefaultName 使用连接 ID 的最后 4 个字符生成默认名称
func DefaultName(connID string) string {
	if len(connID) > 4 {
		connID = connID[len(connID)-4:]
	}
	return "User-" + connID
}

// SanitizeName 清洗用户提交的显示名称：去首尾空白、合并空白、去除控制字符、最多 24 个字符。
// 清洗后为空时生成随机名称。
func (d *Directory) SanitizeName(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return d.randomName()
	}
	v = lineBreaks.ReplaceAllString(v, " ")
	v = multiSpace.ReplaceAllString(v, " ")
	v = controlChars.ReplaceAllString(v, "")
	if utf8.RuneCountInString(v) > maxNameLength {
		v = string([]rune(v)[:maxNameLength])
	}
	if v == "" {
		return d.randomName()
	}
	return v
}

func (d *Directory) randomName() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	d.rndMu.Lock()
	defer d.rndMu.Unlock()
	b := make([]byte, 4)
	for i := range b {
		b[i] = alphabet[d.rnd.Intn(len(alphabet))]
	}
	return "User-" + string(b)
}
