package xpath

import (
	"strconv"
	"strings"
)

// PrettyPrint renders an AST back to XPath source. The output is fully
// parenthesized around binary operations, so it is not byte-identical to
// the input but evaluates identically against any document and context.
func PrettyPrint(n Node) string {
	var sb strings.Builder
	printNode(&sb, n)
	return sb.String()
}

func printNode(sb *strings.Builder, n Node) {
	switch v := n.(type) {
	case nil:
		return
	case *Literal:
		if v.Kind == NumberLiteral {
			if v.Str != "" {
				sb.WriteString(v.Str)
			} else {
				sb.WriteString(strconv.FormatFloat(v.Num, 'g', -1, 64))
			}
			return
		}
		sb.WriteByte('\'')
		sb.WriteString(strings.ReplaceAll(v.Str, "'", "''"))
		sb.WriteByte('\'')

	case *VariableRef:
		sb.WriteByte('$')
		writeQName(sb, v.Prefix, v.Local, v.URI)

	case *ContextItem:
		sb.WriteByte('.')

	case *LocationPath:
		printPath(sb, v)

	case *PathExpr:
		printNode(sb, v.Filter)
		if len(v.Path.Steps) > 0 {
			sb.WriteByte('/')
			printSteps(sb, v.Path.Steps)
		}

	case *Step:
		printStep(sb, v)

	case *FilterExpr:
		printNode(sb, v.Base)
		for _, pred := range v.Predicates {
			sb.WriteByte('[')
			printNode(sb, pred)
			sb.WriteByte(']')
		}

	case *Binary:
		sb.WriteByte('(')
		printNode(sb, v.Left)
		sb.WriteByte(' ')
		sb.WriteString(v.Op.String())
		sb.WriteByte(' ')
		printNode(sb, v.Right)
		sb.WriteByte(')')

	case *Unary:
		for i := 0; i < v.Negations; i++ {
			sb.WriteByte('-')
		}
		printNode(sb, v.Operand)

	case *FunctionCall:
		writeQName(sb, v.Prefix, v.Local, v.URI)
		sb.WriteByte('(')
		printList(sb, v.Args)
		sb.WriteByte(')')

	case *ArgumentPlaceholder:
		sb.WriteByte('?')

	case *NamedFunctionRef:
		writeQName(sb, v.Prefix, v.Local, v.URI)
		sb.WriteByte('#')
		sb.WriteString(strconv.Itoa(v.Arity))

	case *InlineFunction:
		sb.WriteString("function(")
		for i, param := range v.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(param.Name)
			if param.Type != nil {
				sb.WriteString(" as ")
				sb.WriteString(param.Type.String())
			}
		}
		sb.WriteByte(')')
		if v.Returns != nil {
			sb.WriteString(" as ")
			sb.WriteString(v.Returns.String())
		}
		sb.WriteString(" { ")
		printNode(sb, v.Body)
		sb.WriteString(" }")

	case *DynamicCall:
		printNode(sb, v.Base)
		sb.WriteByte('(')
		printList(sb, v.Args)
		sb.WriteByte(')')

	case *Lookup:
		printNode(sb, v.Base)
		sb.WriteByte('?')
		switch {
		case v.Wildcard:
			sb.WriteByte('*')
		case v.KeyExpr != nil:
			printNode(sb, v.KeyExpr)
		default:
			sb.WriteString(v.Key)
		}

	case *MapConstructor:
		sb.WriteString("map { ")
		for i, pair := range v.Pairs {
			if i > 0 {
				sb.WriteString(", ")
			}
			printNode(sb, pair.Key)
			sb.WriteString(" : ")
			printNode(sb, pair.Value)
		}
		sb.WriteString(" }")

	case *ArrayConstructor:
		if v.Curly {
			sb.WriteString("array { ")
			printList(sb, v.Members)
			sb.WriteString(" }")
			return
		}
		sb.WriteByte('[')
		printList(sb, v.Members)
		sb.WriteByte(']')

	case *If:
		sb.WriteString("if (")
		printNode(sb, v.Cond)
		sb.WriteString(") then ")
		printNode(sb, v.Then)
		sb.WriteString(" else ")
		printNode(sb, v.Else)

	case *For:
		printBindingExpr(sb, "for", v.Bindings, "in", "return", v.Body)

	case *Let:
		printBindingExpr(sb, "let", v.Bindings, ":=", "return", v.Body)

	case *Quantified:
		kw := "some"
		if v.Every {
			kw = "every"
		}
		printBindingExpr(sb, kw, v.Bindings, "in", "satisfies", v.Body)

	case *Sequence:
		sb.WriteByte('(')
		printList(sb, v.Items)
		sb.WriteByte(')')

	case *TypeExpr:
		sb.WriteByte('(')
		printNode(sb, v.Operand)
		sb.WriteByte(' ')
		sb.WriteString(v.Kind.String())
		sb.WriteByte(' ')
		sb.WriteString(v.Type.String())
		sb.WriteByte(')')
	}
}

func printBindingExpr(sb *strings.Builder, kw string, bindings []Binding, sep, follower string, body Node) {
	sb.WriteString(kw)
	sb.WriteByte(' ')
	for i, b := range bindings {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('$')
		writeQName(sb, b.Prefix, b.Local, b.URI)
		sb.WriteByte(' ')
		sb.WriteString(sep)
		sb.WriteByte(' ')
		printNode(sb, b.Expr)
	}
	sb.WriteByte(' ')
	sb.WriteString(follower)
	sb.WriteByte(' ')
	printNode(sb, body)
}

func printList(sb *strings.Builder, items []Node) {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		printNode(sb, item)
	}
}

func printPath(sb *strings.Builder, lp *LocationPath) {
	if lp.Absolute {
		sb.WriteByte('/')
	}
	printSteps(sb, lp.Steps)
}

func printSteps(sb *strings.Builder, steps []Node) {
	for i, step := range steps {
		if i > 0 {
			sb.WriteByte('/')
		}
		printNode(sb, step)
	}
}

func printStep(sb *strings.Builder, s *Step) {
	sb.WriteString(s.Axis.String())
	sb.WriteString("::")
	t := s.Test
	switch t.Kind {
	case TestName:
		writeQName(sb, t.Prefix, t.Local, t.URI)
	case TestAnyName:
		sb.WriteByte('*')
	case TestPrefixAny:
		sb.WriteString(t.Prefix)
		sb.WriteString(":*")
	case TestAnyKind:
		sb.WriteString("node()")
	case TestText:
		sb.WriteString("text()")
	case TestComment:
		sb.WriteString("comment()")
	case TestPI:
		sb.WriteString("processing-instruction(")
		sb.WriteString(t.Local)
		sb.WriteString(")")
	case TestKind:
		sb.WriteString(t.KindTest.String())
	}
	for _, pred := range s.Predicates {
		sb.WriteByte('[')
		printNode(sb, pred)
		sb.WriteByte(']')
	}
}

func writeQName(sb *strings.Builder, prefix, local, uri string) {
	switch {
	case prefix != "":
		sb.WriteString(prefix)
		sb.WriteByte(':')
		sb.WriteString(local)
	case uri != "" && prefix == "":
		sb.WriteString("Q{")
		sb.WriteString(uri)
		sb.WriteString("}")
		sb.WriteString(local)
	default:
		sb.WriteString(local)
	}
}
