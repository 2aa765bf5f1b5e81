package kvfs

import (
	"fmt"
)

// tree is a read-only view that can look paths up: the live Storage or a
// Snapshot. Returned inodes are copies owned by the caller.
type tree interface {
	lookup(p Path) (ID, Inode, Code)
	maxSymlinks() int
}

// follow resolves p, following symlinks until a non-symlink is found.
func follow(t tree, op string, p Path) (Path, ID, Inode, error) {
	for depth := 0; ; depth++ {
		id, node, code := t.lookup(p)
		if code != CodeOK {
			return nil, ID{}, nil, newPathError(op, p, code)
		}
		link, ok := node.(*Symlink)
		if !ok {
			return p, id, node, nil
		}
		if depth >= t.maxSymlinks() {
			return nil, ID{}, nil, newPathError(op, p, CodeLoop)
		}
		p = resolveTarget(p, link.Target)
	}
}

func readFile(t tree, op string, p Path) ([]byte, error) {
	p, _, node, err := follow(t, op, p)
	if err != nil {
		return nil, err
	}
	switch node := node.(type) {
	case *File:
		return node.Data, nil
	case *Directory:
		return nil, newPathError(op, p, CodeIsADirectory)
	case *Symlink:
		panic("kvfs: follow returned a symlink")
	default:
		panic(fmt.Sprintf("kvfs: unknown inode type %T", node))
	}
}

func stat(t tree, op string, p Path) (*FileInfo, error) {
	_, id, node, err := follow(t, op, p)
	if err != nil {
		return nil, err
	}
	return newFileInfo(p, id, node), nil
}

func lstat(t tree, op string, p Path) (*FileInfo, error) {
	id, node, code := t.lookup(p)
	if code != CodeOK {
		return nil, newPathError(op, p, code)
	}
	return newFileInfo(p, id, node), nil
}

// readDir lists the entries of the directory at p as absolute paths, in
// the order they were linked.
func readDir(t tree, op string, p Path) ([]string, error) {
	_, node, code := t.lookup(p)
	if code != CodeOK {
		return nil, newPathError(op, p, code)
	}
	switch node := node.(type) {
	case *Directory:
		names := make([]string, 0, len(node.Entries))
		for _, e := range node.Entries {
			names = append(names, p.Join(e.Name).String())
		}
		return names, nil
	case *File, *Symlink:
		return nil, newPathError(op, p, CodeNotADirectory)
	default:
		panic(fmt.Sprintf("kvfs: unknown inode type %T", node))
	}
}

func readlink(t tree, op string, p Path) (string, error) {
	_, node, code := t.lookup(p)
	if code != CodeOK {
		return "", newPathError(op, p, code)
	}
	link, ok := node.(*Symlink)
	if !ok {
		return "", newPathError(op, p, CodeNotFound)
	}
	return link.Target, nil
}

func exists(t tree, p Path) bool {
	_, _, code := t.lookup(p)
	return code == CodeOK
}
