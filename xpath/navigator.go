package xpath

// NodeType identifies the kind of node a NodeNavigator is positioned on.
type NodeType int

const (
	// RootNode is the document root, above the document element.
	RootNode NodeType = iota
	// ElementNode is an element.
	ElementNode
	// AttributeNode is an attribute of an element.
	AttributeNode
	// TextNode is a run of character data.
	TextNode
	// CommentNode is a comment.
	CommentNode
	// ProcessingInstructionNode is a processing instruction.
	ProcessingInstructionNode
)

// NodeNavigator is a cursor over a document tree, the seam through which
// an evaluation engine walks nodes when applying a compiled Expr. This
// package only compiles expressions; implementations of NodeNavigator are
// supplied by document models, and evaluators consume both.
type NodeNavigator interface {
	// NodeType returns the kind of the current node.
	NodeType() NodeType
	// LocalName returns the current node's local name.
	LocalName() string
	// Prefix returns the current node's namespace prefix.
	Prefix() string
	// NamespaceURL returns the current node's namespace URI.
	NamespaceURL() string
	// Value returns the string value of the current node.
	Value() string
	// Copy returns an independent navigator at the same position.
	Copy() NodeNavigator
	// MoveToRoot positions on the root node.
	MoveToRoot()
	// MoveToParent moves to the parent; false when already at the root.
	MoveToParent() bool
	// MoveToNextAttribute advances across the current element's
	// attributes; false when exhausted.
	MoveToNextAttribute() bool
	// MoveToChild moves to the first child; false for leaves.
	MoveToChild() bool
	// MoveToFirst moves to the first sibling; false when already there.
	MoveToFirst() bool
	// MoveToNext moves to the following sibling; false at the last.
	MoveToNext() bool
	// MoveToPrevious moves to the preceding sibling; false at the first.
	MoveToPrevious() bool
	// MoveTo adopts other's position when both share a document;
	// false otherwise.
	MoveTo(other NodeNavigator) bool
}
