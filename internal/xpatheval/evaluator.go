// File: internal/xpatheval/evaluator.go
package xpatheval

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

const (
	// MaxReportedNodes is how many matched nodes are serialized into a result.
	MaxReportedNodes = 10
	// maxNodeChars bounds a single serialized node; a match on the root would
	// otherwise copy the whole document ten times.
	maxNodeChars = 1000
	// defaultCacheSize is the number of parsed documents kept per Evaluator.
	defaultCacheSize = 32
)

// Evaluator evaluates XPath 1.0 expressions against XML page sources. Parsed
// documents are cached by content, so repeated evaluation against the same
// state is cheap. An Evaluator is safe for concurrent use.
type Evaluator struct {
	mu        sync.Mutex
	docs      map[docKey]*xmlquery.Node
	cacheSize int
}

type docKey struct {
	sum    uint64
	length int
}

// NewEvaluator creates an Evaluator with the default cache size.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		docs:      make(map[docKey]*xmlquery.Node),
		cacheSize: defaultCacheSize,
	}
}

// Evaluate runs expression against xmlText. It never returns an error: parse
// and expression failures are reported in the result with IsValid=false.
func (e *Evaluator) Evaluate(xmlText, expression string) (result schemas.XPathEvaluationResult) {
	result.XPathExpression = expression

	// The XPath engine panics on some malformed inputs instead of erroring.
	defer func() {
		if r := recover(); r != nil {
			result = invalid(expression, fmt.Sprintf("xpath evaluation panicked: %v", r))
		}
	}()

	doc, err := e.document(xmlText)
	if err != nil {
		return invalid(expression, fmt.Sprintf("failed to parse XML: %v", err))
	}

	expr, err := xpath.Compile(expression)
	if err != nil {
		return invalid(expression, fmt.Sprintf("invalid xpath expression: %v", err))
	}

	value := expr.Evaluate(xmlquery.CreateXPathNavigator(doc))
	iter, ok := value.(*xpath.NodeIterator)
	if !ok {
		// count(), boolean and string expressions compile fine but locate nothing.
		return schemas.XPathEvaluationResult{
			XPathExpression: expression,
			IsValid:         true,
			Success:         schemas.False,
			Error:           fmt.Sprintf("expression evaluates to %T, not a node-set", value),
		}
	}

	count := 0
	nodes := make([]string, 0, MaxReportedNodes)
	for iter.MoveNext() {
		count++
		if count <= MaxReportedNodes {
			nodes = append(nodes, serialize(iter.Current()))
		}
	}
	if count > MaxReportedNodes {
		nodes = append(nodes, fmt.Sprintf("... and %d more matches", count-MaxReportedNodes))
	}

	return schemas.XPathEvaluationResult{
		XPathExpression: expression,
		NumberOfMatches: count,
		MatchingNodes:   nodes,
		IsValid:         true,
		Success:         schemas.True,
	}
}

// Evaluate is a convenience for one-off evaluation without a shared cache.
func Evaluate(xmlText, expression string) schemas.XPathEvaluationResult {
	return NewEvaluator().Evaluate(xmlText, expression)
}

func invalid(expression, msg string) schemas.XPathEvaluationResult {
	return schemas.XPathEvaluationResult{
		XPathExpression: expression,
		IsValid:         false,
		Success:         schemas.False,
		Error:           msg,
	}
}

func (e *Evaluator) document(xmlText string) (*xmlquery.Node, error) {
	if strings.TrimSpace(xmlText) == "" {
		return nil, fmt.Errorf("empty document")
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(xmlText))
	key := docKey{sum: h.Sum64(), length: len(xmlText)}

	e.mu.Lock()
	doc, ok := e.docs[key]
	e.mu.Unlock()
	if ok {
		return doc, nil
	}

	doc, err := xmlquery.Parse(strings.NewReader(xmlText))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.docs) >= e.cacheSize {
		clear(e.docs)
	}
	e.docs[key] = doc
	e.mu.Unlock()
	return doc, nil
}

func serialize(nav xpath.NodeNavigator) string {
	var out string
	switch n := nav.(type) {
	case *xmlquery.NodeNavigator:
		if n.NodeType() == xpath.AttributeNode {
			out = fmt.Sprintf("%s=%q", n.LocalName(), n.Value())
		} else {
			out = n.Current().OutputXML(true)
		}
	default:
		out = nav.Value()
	}
	if len(out) > maxNodeChars {
		out = out[:maxNodeChars] + "..."
	}
	return out
}
