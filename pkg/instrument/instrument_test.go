package instrument

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strings"
	"testing"
)

func instrumentSource(t *testing.T, filename, src string) (*Instrumenter, string) {
	t.Helper()
	instr := NewInstrumenter(nil)
	fset := token.NewFileSet()
	f, err := instr.InstrumentFile(fset, filename, src)
	if err != nil {
		t.Fatalf("InstrumentFile failed: %v", err)
	}
	return instr, render(t, fset, f)
}

func render(t *testing.T, fset *token.FileSet, f *ast.File) string {
	t.Helper()
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, f); err != nil {
		t.Fatalf("failed to print instrumented file: %v", err)
	}
	return buf.String()
}

func TestInstrumentGoStatement(t *testing.T) {
	src := `package main

func worker(n int) {}

func main() {
	x := 1
	go worker(x)
}
`
	instr, out := instrumentSource(t, "main.go", src)

	if !instr.WasInstrumented() {
		t.Error("expected file to be instrumented")
	}
	alias := generateRuntimeAlias(DefaultConfig().BaseRuntimeAddress)
	if !strings.Contains(out, alias+".SpawnTask(\"go@main.go:7\"") {
		t.Errorf("missing spawn with continuation identifier, got:\n%s", out)
	}
	if !strings.Contains(out, "__mycroft_p0 := x") {
		t.Errorf("argument not hoisted into spawning operation, got:\n%s", out)
	}
	if !strings.Contains(out, alias+".EnterContinuation(\"go@main.go:7\")") {
		t.Errorf("missing continuation transfer, got:\n%s", out)
	}
	if !strings.Contains(out, "worker(__mycroft_p0)") {
		t.Errorf("call not rewritten to hoisted parameters, got:\n%s", out)
	}
	if strings.Contains(out, "go worker") {
		t.Errorf("go statement survived instrumentation, got:\n%s", out)
	}
}

func TestInstrumentMainLifecycle(t *testing.T) {
	src := `package main

func main() {
	println("hello")
}
`
	instr, out := instrumentSource(t, "main.go", src)

	if !instr.WasInstrumented() {
		t.Error("expected main to be instrumented")
	}
	alias := generateRuntimeAlias(DefaultConfig().BaseRuntimeAddress)
	initIdx := strings.Index(out, alias+".Initialize()")
	finalizeIdx := strings.Index(out, "defer "+alias+".Finalize()")
	bodyIdx := strings.Index(out, `println("hello")`)
	if initIdx < 0 || finalizeIdx < 0 {
		t.Fatalf("missing lifecycle calls, got:\n%s", out)
	}
	if !(initIdx < finalizeIdx && finalizeIdx < bodyIdx) {
		t.Errorf("lifecycle calls must precede the original body, got:\n%s", out)
	}
	if !strings.Contains(out, alias+" \"github.com/amirkhaki/mycroft/pkg/runtime\"") {
		t.Errorf("runtime import not added, got:\n%s", out)
	}
}

func TestInstrumentChannelOperations(t *testing.T) {
	src := `package p

func produce(ch chan int) {
	ch <- 1
	close(ch)
}

func consume(ch chan int) (int, bool) {
	v := <-ch
	w, ok := <-ch
	sum := <-ch + 2
	return v + w + sum, ok
}
`
	instr, out := instrumentSource(t, "p.go", src)

	if !instr.WasInstrumented() {
		t.Error("expected channel operations to be instrumented")
	}
	alias := generateRuntimeAlias(DefaultConfig().BaseRuntimeAddress)
	for _, want := range []string{
		alias + ".ChanSend(ch, 1)",
		alias + ".ChanClose(ch)",
		"v := " + alias + ".ChanRecv(ch)",
		"w, ok := " + alias + ".ChanRecvOK(ch)",
		"sum := " + alias + ".ChanRecv(ch) + 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	// No native channel operation may survive outside a select.
	if strings.Contains(out, "<-ch") || strings.Contains(out, "ch <- 1") {
		t.Errorf("native channel operation survived lowering:\n%s", out)
	}
}

func TestSelectStatementsKeepNativeSemantics(t *testing.T) {
	src := `package p

func pick(a, b chan int) int {
	select {
	case v := <-a:
		return v
	case b <- 1:
		return 0
	}
}
`
	instr, out := instrumentSource(t, "p.go", src)

	if instr.WasInstrumented() {
		t.Error("select communication clauses must stay native")
	}
	if !strings.Contains(out, "case v := <-a:") || !strings.Contains(out, "case b <- 1:") {
		t.Errorf("select clauses were rewritten:\n%s", out)
	}
}

func TestNoInstrumentationForPlainCode(t *testing.T) {
	src := `package p

func add(a, b int) int {
	return a + b
}
`
	instr, out := instrumentSource(t, "p.go", src)

	if instr.WasInstrumented() {
		t.Error("plain code must not be reported as instrumented")
	}
	if strings.Contains(out, "__mycroft") {
		t.Errorf("runtime artifacts leaked into plain code:\n%s", out)
	}
}

func TestGenerateRuntimeAliasDeterministic(t *testing.T) {
	a := generateRuntimeAlias("github.com/amirkhaki/mycroft/pkg/runtime")
	b := generateRuntimeAlias("github.com/amirkhaki/mycroft/pkg/runtime")
	if a != b {
		t.Errorf("alias not deterministic: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "__mycroft_") {
		t.Errorf("alias %s lacks mangled prefix", a)
	}
	if c := generateRuntimeAlias("example.com/other"); c == a {
		t.Error("distinct import paths must yield distinct aliases")
	}
}
