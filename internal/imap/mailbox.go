package imap

import (
	"strings"

	"github.com/emersion/go-imap"
)

// BuildMailboxTree rebuilds the mailbox hierarchy from a flat LIST response.
// The returned root is virtual: it has no name and holds the top-level
// mailboxes in server order. Parents the server did not list are created on
// demand so that every listed mailbox is reachable.
func BuildMailboxTree(infos []*imap.MailboxInfo) *MailboxNode {
	root := &MailboxNode{}
	index := make(map[string]*MailboxNode, len(infos))
	for _, info := range infos {
		if info == nil || info.Name == "" {
			continue
		}
		insertMailbox(root, index, info.Name, info.Delimiter)
	}
	return root
}

func insertMailbox(root *MailboxNode, index map[string]*MailboxNode, name, delimiter string) {
	// Namespace prefixes such as "shared/" are listed with a trailing
	// delimiter.
	if delimiter != "" {
		name = strings.TrimSuffix(name, delimiter)
	}
	if name == "" {
		return
	}
	if _, ok := index[name]; ok {
		return
	}

	segments := []string{name}
	if delimiter != "" {
		segments = strings.Split(name, delimiter)
	}

	parent := root
	path := ""
	for i, segment := range segments {
		if i > 0 {
			path += delimiter
		}
		path += segment
		// Empty segments have no mailbox of their own; they stay part of the
		// next segment's path.
		if segment == "" {
			continue
		}
		node, ok := index[path]
		if !ok {
			node = &MailboxNode{Name: segment, Path: path}
			index[path] = node
			parent.Children = append(parent.Children, node)
		}
		parent = node
	}
}

// FlattenMailboxes walks the tree depth-first, each node before its
// children. A root without a path is the virtual root from BuildMailboxTree
// and is not emitted itself.
func FlattenMailboxes(root *MailboxNode) []Mailbox {
	out := []Mailbox{}
	if root == nil {
		return out
	}
	var walk func(node *MailboxNode)
	walk = func(node *MailboxNode) {
		out = append(out, Mailbox{Name: node.Name, Path: node.Path})
		for _, child := range node.Children {
			walk(child)
		}
	}
	if root.Path != "" {
		walk(root)
		return out
	}
	for _, child := range root.Children {
		walk(child)
	}
	return out
}
