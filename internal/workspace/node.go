package workspace

import (
	"path"
	"sort"
	"strings"
)

// Kind distinguishes files from folders in a FileNode tree.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// RootName is the display name of the workspace root.
const RootName = "workspace"

// FileNode is one entry of the workspace tree. The wire format matches the
// workspace service's GET /files response.
type FileNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     Kind        `json:"type"`
	Children []*FileNode `json:"children,omitempty"`
	// Local is set on nodes whose content is served from the local store.
	Local bool `json:"local,omitempty"`
}

// IsFolder reports whether n is a folder.
func (n *FileNode) IsFolder() bool {
	return n != nil && n.Kind == KindFolder
}

// NewRoot returns an empty root folder.
func NewRoot() *FileNode {
	return &FileNode{Name: RootName, Path: "", Kind: KindFolder}
}

// SortChildren orders every folder's children in place: folders first, then
// files, each group lexicographic by name.
func SortChildren(n *FileNode) {
	if n == nil {
		return
	}
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		return a.Name < b.Name
	})
	for _, child := range n.Children {
		SortChildren(child)
	}
}

// FindByPath resolves a path in the tree (recursive).
func FindByPath(root *FileNode, p string) *FileNode {
	if root == nil {
		return nil
	}
	if root.Path == p {
		return root
	}
	for _, child := range root.Children {
		if found := FindByPath(child, p); found != nil {
			return found
		}
	}
	return nil
}

// Flatten returns all nodes in a flat map keyed by path.
func Flatten(root *FileNode) map[string]*FileNode {
	result := make(map[string]*FileNode)
	if root == nil {
		return result
	}
	flattenRecursive(root, result)
	return result
}

func flattenRecursive(node *FileNode, result map[string]*FileNode) {
	result[node.Path] = node
	for _, child := range node.Children {
		flattenRecursive(child, result)
	}
}

// CountFiles counts file nodes in a tree.
func CountFiles(root *FileNode) int {
	if root == nil {
		return 0
	}
	if !root.IsFolder() {
		return 1
	}
	count := 0
	for _, child := range root.Children {
		count += CountFiles(child)
	}
	return count
}

// JoinPath constructs a child path from parent + name.
func JoinPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

// CleanPath normalizes a workspace path: '/'-separated, relative, no "." or
// ".." segments. ".." can never climb above the root; "" is the root itself.
func CleanPath(p string) string {
	cleaned := path.Clean("/" + p)
	return strings.TrimPrefix(cleaned, "/")
}
