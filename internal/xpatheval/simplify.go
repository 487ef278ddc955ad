package xpatheval

import (
	"fmt"

	"github.com/beevik/etree"
)

// PlaceholderFormat is the text left in place of truncated subtrees.
const PlaceholderFormat = "[%d descendant elements omitted]"

// Simplify truncates xmlText below maxDepth. The document root element is at
// depth 0; an element at maxDepth keeps its own tag and attributes but all of
// its content is replaced by a single placeholder text node. The second return
// value is the number of elements removed.
func Simplify(xmlText string, maxDepth int) (string, int, error) {
	if maxDepth < 0 {
		maxDepth = 0
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlText); err != nil {
		return "", 0, fmt.Errorf("failed to parse XML for simplification: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", 0, fmt.Errorf("xml document has no root element")
	}

	removed := truncate(root, 0, maxDepth)
	if removed == 0 {
		return xmlText, 0, nil
	}

	out, err := doc.WriteToString()
	if err != nil {
		return "", 0, fmt.Errorf("failed to serialize simplified XML: %w", err)
	}
	return out, removed, nil
}

func truncate(el *etree.Element, depth, maxDepth int) int {
	if depth < maxDepth {
		removed := 0
		for _, child := range el.ChildElements() {
			removed += truncate(child, depth+1, maxDepth)
		}
		return removed
	}

	n := countDescendants(el)
	if n == 0 {
		return 0
	}
	for len(el.Child) > 0 {
		el.RemoveChildAt(0)
	}
	el.SetText(fmt.Sprintf(PlaceholderFormat, n))
	return n
}

func countDescendants(el *etree.Element) int {
	n := 0
	for _, child := range el.ChildElements() {
		n += 1 + countDescendants(child)
	}
	return n
}
