package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// OverlayMap is a bidirectional mapping between an overlay subdir name
// ("overlay1", "overlay2", ...) and the real project root path it mirrors.
type OverlayMap struct {
	slotToRoot map[string]string
	rootToSlot map[string]string
}

// NewOverlayMap creates an empty OverlayMap.
func NewOverlayMap() *OverlayMap {
	return &OverlayMap{
		slotToRoot: make(map[string]string),
		rootToSlot: make(map[string]string),
	}
}

// Add records a slot<->root pairing. Callers are expected to assign slots
// in stable 1-based iteration order ("overlay1", "overlay2", ...); Add does
// not itself check for duplicate roots or slots, since OverlayWorkspace.Prepare
// already enumerates build roots exactly once each.
func (m *OverlayMap) Add(slot, root string) {
	m.slotToRoot[slot] = root
	m.rootToSlot[root] = slot
}

// RootFor returns the real root for a slot name, and whether it was found.
func (m *OverlayMap) RootFor(slot string) (string, bool) {
	root, ok := m.slotToRoot[slot]
	return root, ok
}

// SlotFor returns the slot name for a real root, and whether it was found.
func (m *OverlayMap) SlotFor(root string) (string, bool) {
	slot, ok := m.rootToSlot[root]
	return slot, ok
}

// OverlayMap does not record insertion order (it is backed by Go maps);
// stable slot order is tracked separately in OverlayLayout.slotOrder.

// PathMapper translates paths between an overlay upper directory tree and
// the real project roots it mirrors, per spec.md §4.1.
type PathMapper struct {
	basePath string // the overlay's upper/ absolute path
	overlay  *OverlayMap
}

// NewPathMapper creates a PathMapper rooted at basePath (an overlay's
// upper/ directory) using overlay to resolve slot<->root pairs.
func NewPathMapper(basePath string, overlay *OverlayMap) *PathMapper {
	return &PathMapper{basePath: basePath, overlay: overlay}
}

// ToReal translates an overlay path into its corresponding real project
// path. If overlayPath does not begin with the mapper's base path, it is
// returned unchanged (the path is outside overlay scope by construction,
// not an error — see spec.md §4.1). If the path's leading slot segment is
// not a known overlay slot, it is likewise returned unchanged.
func (p *PathMapper) ToReal(overlayPath string) string {
	rel, ok := relativeTo(p.basePath, overlayPath)
	if !ok {
		return overlayPath
	}

	slot, tail, _ := strings.Cut(rel, string(filepath.Separator))
	root, ok := p.overlay.RootFor(slot)
	if !ok {
		return overlayPath
	}

	if tail == "" {
		return root
	}

	// tail may come from a symlink target the sandboxed command chose
	// (spec.md §4.6 alias_added/alias_modified), so it's untrusted input
	// being joined onto a real project root: resolve it the way
	// securejoin does, clamping any ".." escape to root instead of
	// following it out. Fall back to a plain join on error rather than
	// losing the path entirely.
	if safe, err := securejoin.SecureJoin(root, tail); err == nil {
		return safe
	}
	return filepath.Join(root, tail)
}

// ToOverlay translates a real project path into its overlay-path
// equivalent for the given overlay slot name (e.g. "overlay1").
func (p *PathMapper) ToOverlay(realPath, overlaySlot string) (string, error) {
	root, ok := p.overlay.RootFor(overlaySlot)
	if !ok {
		return "", fmt.Errorf("%w: unknown slot %q", ErrPathOutsideRoots, overlaySlot)
	}

	rel, ok := relativeTo(root, realPath)
	if !ok {
		return "", fmt.Errorf("%w: %s is not under %s", ErrPathOutsideRoots, realPath, root)
	}

	if rel == "." {
		return filepath.Join(p.basePath, overlaySlot), nil
	}
	return filepath.Join(p.basePath, overlaySlot, rel), nil
}

// relativeTo reports the path of target relative to base, and whether
// target actually lies under base (or equals it). Unlike filepath.Rel it
// never returns a ".."-prefixed result — a ".."-prefixed Rel result means
// "not under base" for our purposes and is reported as ok=false.
func relativeTo(base, target string) (string, bool) {
	base = filepath.Clean(base)
	target = filepath.Clean(target)

	if target == base {
		return ".", true
	}

	prefix := base + string(filepath.Separator)
	if !strings.HasPrefix(target, prefix) {
		return "", false
	}

	return strings.TrimPrefix(target, prefix), true
}
