package ir

import "fmt"

// SpecValue converts a grammar spec into an IRObject for canonical encoding.
// Rule order is preserved because it is significant (declaration order).
func SpecValue(spec GrammarSpec) IRObject {
	rules := make(IRArray, 0, len(spec.Rules))
	for _, r := range spec.Rules {
		rules = append(rules, IRObject{
			"name": IRString(r.Name),
			"type": IRString(r.Type.String()),
			"expr": ExprValue(r.Expr),
		})
	}
	return IRObject{
		"ir_version": IRString(IRVersion),
		"start":      IRString(spec.Start),
		"rules":      rules,
	}
}

// ExprValue converts an expression tree into an IRValue.
// Every node becomes an object tagged with its "op".
func ExprValue(e Expr) IRValue {
	switch e := e.(type) {
	case *Str:
		return IRObject{"op": IRString("str"), "value": IRString(e.Value)}
	case *Insens:
		return IRObject{"op": IRString("insens"), "value": IRString(e.Value)}
	case *Range:
		return IRObject{"op": IRString("range"), "lo": IRInt(e.Lo), "hi": IRInt(e.Hi)}
	case *Ident:
		return IRObject{"op": IRString("ref"), "name": IRString(e.Name)}
	case *Seq:
		return IRObject{"op": IRString("seq"), "left": ExprValue(e.Left), "right": ExprValue(e.Right)}
	case *Choice:
		return IRObject{
			"op":           IRString("choice"),
			"left":         ExprValue(e.Left),
			"right":        ExprValue(e.Right),
			"left_weight":  IRInt(e.LeftWeight),
			"right_weight": IRInt(e.RightWeight),
		}
	case *Opt:
		return IRObject{"op": IRString("opt"), "inner": ExprValue(e.Inner)}
	case *Rep:
		return IRObject{"op": IRString("rep"), "inner": ExprValue(e.Inner), "min": IRInt(e.Min), "max": IRInt(e.Max)}
	case *PosPred:
		return IRObject{"op": IRString("pos"), "inner": ExprValue(e.Inner)}
	case *NegPred:
		return IRObject{"op": IRString("neg"), "inner": ExprValue(e.Inner)}
	case *Weight:
		return IRObject{"op": IRString("weight")}
	case nil:
		return IRObject{"op": IRString("empty")}
	default:
		panic(fmt.Sprintf("ir.ExprValue: unknown expression %T", e))
	}
}
