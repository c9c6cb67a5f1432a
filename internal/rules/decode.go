package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrDecode is returned for rule documents that do not describe a valid tree.
var ErrDecode = errors.New("rules: invalid rule document")

// Decode reads rules from a YAML (or JSON) document. The document is either
// a list of rules or a mapping with a "rules" list:
//
//	rules:
//	  - name: addition_profit
//	    tags: [hard]
//	    expr:
//	      eq: [profit, {turnover: 1, cost: -1}]
//	  - name: eligible_for_marriage
//	    expr:
//	      implies: [married, {ge: [age, 16]}]
//
// Expression nodes are single-key mappings: name, not, and, or, implies,
// ge, le, eq, gt, lt, ne, and compare (an alternating operand/operator list
// such as [a, "<=", b, "<=", c]). A bare string is a boolean field. Operands
// are numbers (constants), strings (fields) or mappings of field to
// coefficient with an optional "const" key.
func Decode(r io.Reader) ([]Rule, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if root.Kind == 0 {
		return nil, nil
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	list := doc
	if doc.Kind == yaml.MappingNode {
		list = mappingValue(doc, "rules")
		if list == nil {
			return nil, fmt.Errorf("%w: line %d: expected a \"rules\" key", ErrDecode, doc.Line)
		}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: line %d: expected a list of rules", ErrDecode, list.Line)
	}

	out := make([]Rule, 0, len(list.Content))
	seen := make(map[string]int, len(list.Content))
	for i, item := range list.Content {
		rule, err := decodeRule(item, i)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[rule.Name]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate rule name %q (first at rule %d)", ErrDecode, item.Line, rule.Name, prev)
		}
		seen[rule.Name] = i
		out = append(out, rule)
	}
	return out, nil
}

// DecodeFile reads rules from path.
func DecodeFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules %s: %w", path, err)
	}
	defer f.Close()
	rs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

type ruleDoc struct {
	Name string    `yaml:"name"`
	Tags []string  `yaml:"tags"`
	Expr yaml.Node `yaml:"expr"`
}

func decodeRule(n *yaml.Node, i int) (Rule, error) {
	var d ruleDoc
	if err := n.Decode(&d); err != nil {
		return Rule{}, fmt.Errorf("%w: line %d: %v", ErrDecode, n.Line, err)
	}
	if strings.TrimSpace(d.Name) == "" {
		d.Name = "rule_" + strconv.Itoa(i)
	}
	if d.Expr.Kind == 0 {
		return Rule{}, fmt.Errorf("%w: line %d: rule %q has no expr", ErrDecode, n.Line, d.Name)
	}
	expr, err := decodeNode(&d.Expr)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", d.Name, err)
	}
	return Rule{Name: d.Name, Tags: d.Tags, Expr: expr}, nil
}

func decodeNode(n *yaml.Node) (Node, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() != "!!str" {
			return nil, fmt.Errorf("%w: line %d: boolean field must be a name, got %q", ErrDecode, n.Line, n.Value)
		}
		return Name{Field: n.Value}, nil
	case yaml.MappingNode:
	default:
		return nil, fmt.Errorf("%w: line %d: expected an expression mapping", ErrDecode, n.Line)
	}
	if len(n.Content) != 2 {
		return nil, fmt.Errorf("%w: line %d: expression must have exactly one key", ErrDecode, n.Line)
	}
	key, val := n.Content[0].Value, n.Content[1]

	switch key {
	case "name":
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: name must be a scalar", ErrDecode, val.Line)
		}
		return Name{Field: val.Value}, nil
	case "not":
		x, err := decodeNode(val)
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	case "and", "or", "implies":
		items, err := decodeNodes(val)
		if err != nil {
			return nil, err
		}
		switch {
		case key == "implies" && len(items) != 2:
			return nil, fmt.Errorf("%w: line %d: implies takes exactly two operands", ErrDecode, val.Line)
		case key == "implies":
			return Implies(items[0], items[1]), nil
		case len(items) < 2:
			return nil, fmt.Errorf("%w: line %d: %s needs at least two operands", ErrDecode, val.Line, key)
		case key == "and":
			return AllOf(items...), nil
		default:
			return AnyOf(items...), nil
		}
	case "compare":
		return decodeChain(val)
	}

	op, ok := ParseOp(key)
	if !ok {
		return nil, fmt.Errorf("%w: line %d: unknown expression key %q", ErrDecode, n.Content[0].Line, key)
	}
	if val.Kind != yaml.SequenceNode || len(val.Content) != 2 {
		return nil, fmt.Errorf("%w: line %d: %s takes exactly two operands", ErrDecode, val.Line, key)
	}
	l, err := decodeOperand(val.Content[0])
	if err != nil {
		return nil, err
	}
	r, err := decodeOperand(val.Content[1])
	if err != nil {
		return nil, err
	}
	return Cmp(l, op, r), nil
}

func decodeNodes(n *yaml.Node) ([]Node, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: line %d: expected a list of expressions", ErrDecode, n.Line)
	}
	out := make([]Node, 0, len(n.Content))
	for _, c := range n.Content {
		x, err := decodeNode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// decodeChain decodes [operand, op, operand, op, operand, ...].
func decodeChain(n *yaml.Node) (Node, error) {
	if n.Kind != yaml.SequenceNode || len(n.Content) < 3 || len(n.Content)%2 == 0 {
		return nil, fmt.Errorf("%w: line %d: compare expects [operand, op, operand, ...]", ErrDecode, n.Line)
	}
	var c Compare
	for i, item := range n.Content {
		if i%2 == 1 {
			op, ok := ParseOp(item.Value)
			if item.Kind != yaml.ScalarNode || !ok {
				return nil, fmt.Errorf("%w: line %d: unknown operator %q", ErrDecode, item.Line, item.Value)
			}
			c.Ops = append(c.Ops, op)
			continue
		}
		o, err := decodeOperand(item)
		if err != nil {
			return nil, err
		}
		c.Operands = append(c.Operands, o)
	}
	return c, nil
}

func decodeOperand(n *yaml.Node) (LinExpr, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int", "!!float":
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return LinExpr{}, fmt.Errorf("%w: line %d: %v", ErrDecode, n.Line, err)
			}
			return Constant(f), nil
		case "!!str":
			return Field(n.Value), nil
		}
		return LinExpr{}, fmt.Errorf("%w: line %d: operand %q is neither a number nor a field", ErrDecode, n.Line, n.Value)
	case yaml.MappingNode:
		var l LinExpr
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			f, err := strconv.ParseFloat(v.Value, 64)
			if v.Kind != yaml.ScalarNode || err != nil {
				return LinExpr{}, fmt.Errorf("%w: line %d: coefficient of %q must be a number", ErrDecode, v.Line, k.Value)
			}
			if k.Value == "const" {
				l.Const += f
				continue
			}
			l = l.Plus(LinExpr{Terms: []FieldTerm{{Field: k.Value, Coef: f}}})
		}
		return l, nil
	default:
		return LinExpr{}, fmt.Errorf("%w: line %d: unsupported operand", ErrDecode, n.Line)
	}
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
