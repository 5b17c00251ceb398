package javasrc

import (
	"context"
	"testing"
)

const barSource = `package com.foo;

import java.util.List;
import java.util.*;
import static com.foo.util.Strings.join;

public class Bar extends AbstractBar<String> {
    private Baz field = new Baz();

    public void run(Baz param, List<String> names) {
        Baz.qux();
        param.qux(1, 2);
        Baz local = new Baz();
        local.qux();
        this.field.qux();
        helper();
        super.base();
        new Baz().qux();
        names.forEach(n -> n.trim());
        for (Baz item : items()) {
            item.qux();
        }
        java.util.Collections.emptyList();
        ((Baz) obj).qux();
    }

    @Override
    protected int helper() {
        return 1;
    }

    static void spread(String first, int... rest) {
    }

    public static class Inner {
        void innerCall() {
            deep();
        }

        void deep() {
        }
    }

    enum Mode {
        A, B;

        void describe() {
        }
    }
}
`

func parseBar(t *testing.T) *Unit {
	t.Helper()
	u, err := Parse(context.Background(), []byte(barSource))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	t.Cleanup(u.Close)
	return u
}

func TestParse_Declarations(t *testing.T) {
	u := parseBar(t)

	if u.Package != "com.foo" {
		t.Errorf("expected package com.foo, got %q", u.Package)
	}

	wantImports := []Import{
		{Path: "java.util.List"},
		{Path: "java.util", OnDemand: true},
		{Path: "com.foo.util.Strings.join", Static: true},
	}
	if len(u.Imports) != len(wantImports) {
		t.Fatalf("expected %d imports, got %+v", len(wantImports), u.Imports)
	}
	for i, want := range wantImports {
		if u.Imports[i] != want {
			t.Errorf("import %d = %+v, want %+v", i, u.Imports[i], want)
		}
	}

	var names []string
	for _, typ := range u.Types {
		names = append(names, typ.QualifiedName)
	}
	want := []string{"com.foo.Bar", "com.foo.Bar.Inner", "com.foo.Bar.Mode"}
	if len(names) != len(want) {
		t.Fatalf("expected types %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("type %d = %q, want %q", i, names[i], want[i])
		}
	}

	bar := u.TopLevel()
	if bar == nil || bar.Name != "Bar" || bar.Kind != "class" {
		t.Fatalf("unexpected top level type %+v", bar)
	}
	if bar.Super != "AbstractBar" {
		t.Errorf("expected superclass AbstractBar, got %q", bar.Super)
	}

	if u.FindType("com.foo.Bar.Mode").Kind != "enum" {
		t.Error("expected Mode to be an enum")
	}
	if u.FindType("com.foo.Missing") != nil {
		t.Error("expected no type for an unknown name")
	}
}

func TestParse_Methods(t *testing.T) {
	u := parseBar(t)
	bar := u.TopLevel()

	tests := []struct {
		name    string
		arity   int
		line    int
		varargs bool
	}{
		{"run", 2, 10, false},
		{"helper", 0, 27, false},
		{"spread", 2, 32, true},
	}
	for _, tt := range tests {
		m, ok := bar.FindMethod(tt.name, tt.arity)
		if !ok {
			t.Errorf("method %s/%d not found", tt.name, tt.arity)
			continue
		}
		if m.Line != tt.line {
			t.Errorf("method %s starts on line %d, want %d", tt.name, m.Line, tt.line)
		}
		if m.Varargs != tt.varargs {
			t.Errorf("method %s varargs = %v, want %v", tt.name, m.Varargs, tt.varargs)
		}
	}

	if _, ok := bar.FindMethod("spread", 5); !ok {
		t.Error("varargs method must accept extra arguments")
	}
	if _, ok := bar.FindMethod("spread", 1); !ok {
		t.Error("varargs method must accept an empty variable part")
	}
	if _, ok := bar.FindMethod("run", 1); ok {
		t.Error("arity mismatch must not match")
	}

	if _, ok := u.FindType("com.foo.Bar.Mode").FindMethod("describe", 0); !ok {
		t.Error("expected enum method describe")
	}
	if _, ok := u.FindType("com.foo.Bar.Inner").FindMethod("deep", 0); !ok {
		t.Error("expected nested class method deep")
	}
}

func TestParse_ToleratesSyntaxErrors(t *testing.T) {
	u, err := Parse(context.Background(), []byte("package a;\nclass Broken { void f() { int x = ; }\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer u.Close()

	if u.Package != "a" {
		t.Errorf("expected package a, got %q", u.Package)
	}
}

func TestParse_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Parse(ctx, []byte("class A {}")); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}

func TestUnit_Offset(t *testing.T) {
	u, err := Parse(context.Background(), []byte("ab\nxÿz\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	tests := []struct {
		pos  Position
		want uint32
		ok   bool
	}{
		{Position{1, 1}, 0, true},
		{Position{1, 2}, 1, true},
		{Position{2, 1}, 3, true},
		{Position{2, 3}, 6, true}, // ÿ is two bytes
		{Position{1, 3}, 0, false},
		{Position{3, 1}, 0, false},
		{Position{0, 1}, 0, false},
	}
	for _, tt := range tests {
		got, ok := u.Offset(tt.pos)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Offset(%+v) = %d, %v, want %d, %v", tt.pos, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParse_MemberTypes(t *testing.T) {
	u, err := Parse(context.Background(), []byte(`package com.foo;

class Holder {
    private Baz first, second;
    int count;
    static final java.util.Map<String, Baz> BY_NAME = null;

    Baz make() {
        return null;
    }

    int[] counts() {
        return null;
    }

    record Point(int x, Baz owner) {
    }

    enum Mode {
        A, B
    }
}
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer u.Close()

	holder := u.FindType("com.foo.Holder")
	fields := []Field{
		{Name: "first", Type: "Baz"},
		{Name: "second", Type: "Baz"},
		{Name: "count"},
		{Name: "BY_NAME", Type: "java.util.Map"},
	}
	for _, want := range fields {
		if got, ok := holder.FindField(want.Name); !ok || got != want {
			t.Errorf("FindField(%s) = %+v, %v, want %+v", want.Name, got, ok, want)
		}
	}

	if m, _ := holder.FindMethod("make", 0); m.Returns != "Baz" {
		t.Errorf("make returns %q, want Baz", m.Returns)
	}
	if m, _ := holder.FindMethod("counts", 0); m.Returns != "" {
		t.Errorf("array return must have no class, got %q", m.Returns)
	}

	if f, ok := u.FindType("com.foo.Holder.Point").FindField("owner"); !ok || f.Type != "Baz" {
		t.Errorf("record component owner = %+v, %v", f, ok)
	}
	if f, ok := u.FindType("com.foo.Holder.Mode").FindField("B"); !ok || f.Type != "Mode" {
		t.Errorf("enum constant B = %+v, %v", f, ok)
	}
}
