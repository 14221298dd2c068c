// Package canvas 实现客户端的双层渲染：backing 光栅缓存所有已提交操作，
// transient 表保存进行中的预览，每次更新只需拷贝 backing 再叠加预览。
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"sort"
	"sync"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/render"

	"github.com/fogleman/gg"
)

// Reconciler 持有本地认为已提交的操作列表、预览表以及两层画布。
// 所有方法都会加锁，网络读协程和输入协程可以并发调用。
type Reconciler struct {
	mu         sync.Mutex
	width      int
	height     int
	ops        []domain.Operation
	transients map[string]domain.Operation
	backing    *image.RGBA
	live       *image.RGBA
	rebuilds   int
}

// NewReconciler 创建指定尺寸的空画布
func NewReconciler(width, height int) *Reconciler {
	if width <= 0 || height <= 0 {
		panic("canvas size must be positive")
	}
	r := &Reconciler{
		width:      width,
		height:     height,
		transients: make(map[string]domain.Operation),
		backing:    image.NewRGBA(image.Rect(0, 0, width, height)),
		live:       image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	return r
}

// Apply 处理一条 stroke。
// 最终操作：移除同 ID 预览，替换或追加到 ops，烘焙到 backing。
// 预览：替换同 ID 的预览。已提交 ID 的迟到预览会被忽略。
func (r *Reconciler) Apply(op domain.Operation) {
	if len(op.Points) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !op.Final {
		if r.indexOf(op.ID) >= 0 {
			return
		}
		r.transients[op.ID] = op.Clone()
		r.composeLocked()
		return
	}

	delete(r.transients, op.ID)
	if idx := r.indexOf(op.ID); idx >= 0 {
		// 同一 ID 的最终版本重复到达（例如 redo 之后的 stroke 与 state），
		// 替换后必须重建，否则旧像素会残留在 backing 上
		r.ops[idx] = op.Clone()
		r.rebuildLocked()
	} else {
		r.ops = append(r.ops, op.Clone())
		render.Apply(gg.NewContextForRGBA(r.backing), op)
	}
	r.composeLocked()
}

// Remove 丢弃一个预览或已提交操作。命中已提交操作时触发全量重建。
func (r *Reconciler) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, hadTransient := r.transients[id]
	delete(r.transients, id)
	if idx := r.indexOf(id); idx >= 0 {
		r.ops = append(r.ops[:idx:idx], r.ops[idx+1:]...)
		r.rebuildLocked()
		r.composeLocked()
		return
	}
	if hadTransient {
		r.composeLocked()
	}
}

// RemoveAuthorTransients 丢弃某个作者的全部预览，用于对方断线时清理残留笔画
func (r *Reconciler) RemoveAuthorTransients(authorID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, op := range r.transients {
		if op.AuthorID == authorID {
			delete(r.transients, id)
			n++
		}
	}
	if n > 0 {
		r.composeLocked()
	}
	return n
}

// Resync 用权威快照替换本地已提交状态，只保留 final 操作，然后全量重建。
// 多次应用同一快照结果相同。
func (r *Reconciler) Resync(ops []domain.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops = r.ops[:0]
	for _, op := range ops {
		if op.Final {
			r.ops = append(r.ops, op.Clone())
		}
	}
	// 已提交的 ID 不应继续显示为预览
	for _, op := range r.ops {
		delete(r.transients, op.ID)
	}
	r.rebuildLocked()
	r.composeLocked()
}

// Clear 清空已提交操作、预览和 backing
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
	r.transients = make(map[string]domain.Operation)
	r.rebuildLocked()
	r.composeLocked()
}

// Resize 以新尺寸重绘 backing，历史不丢失
func (r *Reconciler) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.width && height == r.height {
		return
	}
	r.width, r.height = width, height
	r.backing = image.NewRGBA(image.Rect(0, 0, width, height))
	r.live = image.NewRGBA(image.Rect(0, 0, width, height))
	r.rebuildLocked()
	r.composeLocked()
}

// Frame 返回当前可见帧的拷贝
func (r *Reconciler) Frame() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRGBA(r.live)
}

// Backing 返回 backing 光栅的拷贝
func (r *Reconciler) Backing() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRGBA(r.backing)
}

// Ops 返回本地已提交操作的拷贝
func (r *Reconciler) Ops() []domain.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Operation, len(r.ops))
	for i := range r.ops {
		out[i] = r.ops[i].Clone()
	}
	return out
}

// TransientIDs 返回排序后的预览 ID
func (r *Reconciler) TransientIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.transients))
	for id := range r.transients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rebuilds 返回全量重建的次数
func (r *Reconciler) Rebuilds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuilds
}

func (r *Reconciler) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// rebuildLocked 清空 backing 并按提交顺序重绘所有 final 操作
func (r *Reconciler) rebuildLocked() {
	clearRGBA(r.backing)
	dc := gg.NewContextForRGBA(r.backing)
	for _, op := range r.ops {
		if op.Final {
			render.Apply(dc, op)
		}
	}
	r.rebuilds++
}

// composeLocked 清空 live，拷贝 backing，再叠加所有预览
func (r *Reconciler) composeLocked() {
	draw.Draw(r.live, r.live.Bounds(), r.backing, image.Point{}, draw.Src)
	if len(r.transients) == 0 {
		return
	}
	dc := gg.NewContextForRGBA(r.live)
	for _, op := range r.transients {
		render.Apply(dc, op)
	}
}

func (r *Reconciler) indexOf(id string) int {
	for i := range r.ops {
		if r.ops[i].ID == id {
			return i
		}
	}
	return -1
}

func clearRGBA(im *image.RGBA) {
	draw.Draw(im, im.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
}

func cloneRGBA(im *image.RGBA) *image.RGBA {
	out := image.NewRGBA(im.Bounds())
	copy(out.Pix, im.Pix)
	return out
}
