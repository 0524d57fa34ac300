package browser

import (
	"sort"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
)

// frameRegistry numbers the frames of one tab. The top frame is always 0;
// other frames get the next free number the first time they are seen and keep
// it for the life of the process. It also remembers the isolated world
// created in each frame.
type frameRegistry struct {
	mu     sync.Mutex
	ids    map[cdp.FrameID]int
	frames map[int]cdp.FrameID
	next   int
	live   map[cdp.FrameID]bool
	worlds map[cdp.FrameID]runtime.ExecutionContextID
	owners map[runtime.ExecutionContextID]cdp.FrameID
}

func newFrameRegistry() *frameRegistry {
	return &frameRegistry{
		ids:    make(map[cdp.FrameID]int),
		frames: make(map[int]cdp.FrameID),
		next:   1,
		live:   make(map[cdp.FrameID]bool),
		worlds: make(map[cdp.FrameID]runtime.ExecutionContextID),
		owners: make(map[runtime.ExecutionContextID]cdp.FrameID),
	}
}

// load replaces the live set with the frames of tree.
func (r *frameRegistry) load(tree *page.FrameTree) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = make(map[cdp.FrameID]bool)
	if tree == nil || tree.Frame == nil {
		return
	}
	r.setRootLocked(tree.Frame.ID)
	var walk func(children []*page.FrameTree)
	walk = func(children []*page.FrameTree) {
		for _, child := range children {
			if child == nil || child.Frame == nil {
				continue
			}
			r.attachLocked(child.Frame.ID)
			walk(child.ChildFrames)
		}
	}
	walk(tree.ChildFrames)
}

func (r *frameRegistry) attach(frame cdp.FrameID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachLocked(frame)
}

func (r *frameRegistry) attachLocked(frame cdp.FrameID) int {
	r.live[frame] = true
	if id, ok := r.ids[frame]; ok {
		return id
	}
	id := r.next
	r.next++
	r.ids[frame] = id
	r.frames[id] = frame
	return id
}

func (r *frameRegistry) setRootLocked(frame cdp.FrameID) {
	r.live[frame] = true
	if old, ok := r.frames[0]; ok && old == frame {
		return
	}
	if old, ok := r.frames[0]; ok {
		delete(r.ids, old)
		delete(r.live, old)
		r.dropWorldLocked(old)
	}
	if id, ok := r.ids[frame]; ok {
		delete(r.frames, id)
	}
	r.ids[frame] = 0
	r.frames[0] = frame
}

// navigated records a committed navigation. The frame's world did not survive.
func (r *frameRegistry) navigated(frame *cdp.Frame) {
	if frame == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if frame.ParentID == "" {
		r.setRootLocked(frame.ID)
	} else {
		r.attachLocked(frame.ID)
	}
	r.dropWorldLocked(frame.ID)
}

func (r *frameRegistry) detach(frame cdp.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, frame)
	r.dropWorldLocked(frame)
}

// lookup returns the CDP frame for a live frame number.
func (r *frameRegistry) lookup(id int) (cdp.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame, ok := r.frames[id]
	if !ok || !r.live[frame] {
		return "", false
	}
	return frame, true
}

// liveIDs lists the numbers of all live frames in ascending order.
func (r *frameRegistry) liveIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.live))
	for frame := range r.live {
		ids = append(ids, r.ids[frame])
	}
	sort.Ints(ids)
	return ids
}

// setWorld records the isolated world of frame. Worlds of frames not yet in
// the tree are kept too: they are replayed before the tree is first read.
func (r *frameRegistry) setWorld(frame cdp.FrameID, ctx runtime.ExecutionContextID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropWorldLocked(frame)
	r.worlds[frame] = ctx
	r.owners[ctx] = frame
}

func (r *frameRegistry) world(frame cdp.FrameID) (runtime.ExecutionContextID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, ok := r.worlds[frame]
	return ctx, ok
}

func (r *frameRegistry) dropWorld(frame cdp.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropWorldLocked(frame)
}

func (r *frameRegistry) dropWorldLocked(frame cdp.FrameID) {
	if ctx, ok := r.worlds[frame]; ok {
		delete(r.owners, ctx)
		delete(r.worlds, frame)
	}
}

// dropContext forgets the world with id ctx, if it is one.
func (r *frameRegistry) dropContext(ctx runtime.ExecutionContextID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frame, ok := r.owners[ctx]; ok {
		delete(r.owners, ctx)
		delete(r.worlds, frame)
	}
}

// clearWorlds forgets every world, as after Runtime.executionContextsCleared.
func (r *frameRegistry) clearWorlds() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.worlds = make(map[cdp.FrameID]runtime.ExecutionContextID)
	r.owners = make(map[runtime.ExecutionContextID]cdp.FrameID)
}

// owner maps an execution context back to its frame number.
func (r *frameRegistry) owner(ctx runtime.ExecutionContextID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame, ok := r.owners[ctx]
	if !ok {
		return 0, false
	}
	id, ok := r.ids[frame]
	return id, ok
}
