package module

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// CommonJsUsage is the static-scan summary AnalyzeCommonJsUsage produces,
// used by tooling to warn about require patterns that won't
// resolve inside the GAS runtime's pseudo-require shim.
type CommonJsUsage struct {
	RequireCalls  []string
	ModuleExports bool
	ExportsUsage  []string
}

// AnalyzeCommonJsUsage walks inner's JavaScript AST collecting every
// `require(...)` call's literal argument, whether `module.exports` is
// assigned anywhere, and every `exports.<name>` property assigned.
func AnalyzeCommonJsUsage(inner string) (CommonJsUsage, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	content := []byte(inner)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return CommonJsUsage{}, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	var usage CommonJsUsage
	seenExports := make(map[string]bool)
	walkCommonJsNode(tree.RootNode(), content, &usage, seenExports)
	return usage, nil
}

func walkCommonJsNode(node *sitter.Node, content []byte, usage *CommonJsUsage, seenExports map[string]bool) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "call_expression":
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
			if string(content[fn.StartByte():fn.EndByte()]) == "require" {
				if arg := firstStringArgument(node, content); arg != "" {
					usage.RequireCalls = append(usage.RequireCalls, arg)
				}
			}
		}
	case "assignment_expression":
		if left := node.ChildByFieldName("left"); left != nil && left.Type() == "member_expression" {
			obj := left.ChildByFieldName("object")
			prop := left.ChildByFieldName("property")
			if obj != nil && prop != nil {
				objName := string(content[obj.StartByte():obj.EndByte()])
				propName := string(content[prop.StartByte():prop.EndByte()])
				switch objName {
				case "module":
					if propName == "exports" {
						usage.ModuleExports = true
					}
				case "exports":
					if !seenExports[propName] {
						seenExports[propName] = true
						usage.ExportsUsage = append(usage.ExportsUsage, propName)
					}
				}
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkCommonJsNode(node.Child(i), content, usage, seenExports)
	}
}

// firstStringArgument returns the literal text (quotes stripped) of a call
// expression's first string-literal argument, or "" if it has none.
func firstStringArgument(call *sitter.Node, content []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		if child.Type() == "string" {
			raw := string(content[child.StartByte():child.EndByte()])
			if len(raw) >= 2 {
				return raw[1 : len(raw)-1]
			}
			return raw
		}
	}
	return ""
}
