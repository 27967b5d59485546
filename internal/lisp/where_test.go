package lisp

import "testing"

func runWhere(t *testing.T, src string) *Step {
	t.Helper()
	forms, err := ReadAll(src)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	ir, err := NewAnalyzer().AnalyzeTopLevel(forms)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	env := NewRootEnv(NewMap(), NewMap(), nil, nil, [3]Value{}, DefaultLimits(), 0)
	step, err := NewEvaluator(env).Run(ir)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	return step
}

func TestWhereEqualsCoercesKeywordAndStringFieldValue(t *testing.T) {
	step := runWhere(t, `
		(return (count (filter (where :status = "open") [{:status :open} {:status "open"} {:status :closed}])))
	`)
	if step.Return.String() != "2" {
		t.Errorf("expected 2 matches via keyword/string coercion, got %s", step.Return.String())
	}
}

func TestWhereNotEqualUsesSameCoercion(t *testing.T) {
	step := runWhere(t, `
		(return (count (filter (where :status not= :open) [{:status :open} {:status "open"} {:status :closed}])))
	`)
	if step.Return.String() != "1" {
		t.Errorf("expected 1 non-matching entry, got %s", step.Return.String())
	}
}

func TestWhereComparisonOperatorsDoNotCoerce(t *testing.T) {
	step := runWhere(t, `
		(return (count (filter (where :priority > 1) [{:priority 2} {:priority 1} {:priority :high}])))
	`)
	if step.Return.String() != "1" {
		t.Errorf("expected 1 numeric match (non-numeric priority ignored), got %s", step.Return.String())
	}
}

func TestWhereInOperator(t *testing.T) {
	step := runWhere(t, `
		(return (count (filter (where :tag in [:a :b]) [{:tag :a} {:tag :c} {:tag :b}])))
	`)
	if step.Return.String() != "2" {
		t.Errorf("expected 2 matches for the 'in' operator, got %s", step.Return.String())
	}
}

func TestWhereIncludesOperator(t *testing.T) {
	step := runWhere(t, `
		(return (count (filter (where :tags includes :urgent) [{:tags [:urgent :bug]} {:tags [:bug]}])))
	`)
	if step.Return.String() != "1" {
		t.Errorf("expected 1 match for the 'includes' operator, got %s", step.Return.String())
	}
}

func TestWhereMultiFieldSpecTakesFirstPresent(t *testing.T) {
	step := runWhere(t, `
		(return (count (filter (where [:name :title] = "x") [{:title "x"} {:name "y"}])))
	`)
	if step.Return.String() != "1" {
		t.Errorf("expected 1 match via fallback field lookup, got %s", step.Return.String())
	}
}

func TestWhereRejectsUnknownOperator(t *testing.T) {
	forms, err := ReadAll(`(return (filter (where :x :nope 1) [{:x 1}]))`)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	ir, err := NewAnalyzer().AnalyzeTopLevel(forms)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	env := NewRootEnv(NewMap(), NewMap(), nil, nil, [3]Value{}, DefaultLimits(), 0)
	if _, err := NewEvaluator(env).Run(ir); err == nil {
		t.Fatal("expected an error for an unknown where operator")
	}
}
